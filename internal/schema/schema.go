// Package schema checks that a sanitized generation payload carries the top-level keys its mode or phase
// requires before anything decodes it.
package schema

import (
	"fmt"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/models"
	"github.com/tidwall/gjson"
	"log/slog"
	"strings"
)

var (
	// ErrSchemaIncomplete is matched by SchemaIncompleteError.
	ErrSchemaIncomplete = errors.NewSentinel("response is missing required fields")
	// ErrSchemaInvalid is matched by SchemaInvalidError.
	ErrSchemaInvalid = errors.NewSentinel("response violates a structural bound")
)

// ReduceComplexityHint is appended to incomplete schema errors. Truncated responses are the usual cause.
const ReduceComplexityHint = "the response was probably cut short; try fewer suspects or learning objectives"

// SchemaIncompleteError names the required keys that were absent from a payload.
type SchemaIncompleteError struct {
	Schema  string
	Missing []string
}

func (e *SchemaIncompleteError) Error() string {
	return fmt.Sprintf("%s response is missing %s; %s", e.Schema, strings.Join(e.Missing, ", "), ReduceComplexityHint)
}

func (e *SchemaIncompleteError) Is(target error) bool {
	return target == ErrSchemaIncomplete
}

func (e *SchemaIncompleteError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("msg", ErrSchemaIncomplete.Error()),
		slog.String("schema", e.Schema),
		slog.Any("missing", e.Missing),
	)
}

// SchemaInvalidError is returned when every key is present but a value is out of bounds.
type SchemaInvalidError struct {
	Schema string
	Field  string
	Reason string
}

func (e *SchemaInvalidError) Error() string {
	return fmt.Sprintf("%s response has invalid %s: %s", e.Schema, e.Field, e.Reason)
}

func (e *SchemaInvalidError) Is(target error) bool {
	return target == ErrSchemaInvalid
}

func (e *SchemaInvalidError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("msg", ErrSchemaInvalid.Error()),
		slog.String("schema", e.Schema),
		slog.String("field", e.Field),
		slog.String("reason", e.Reason),
	)
}

// Schema lists the required top-level keys of one kind of payload.
type Schema struct {
	Name string
	// Required keys must be present with any value.
	Required []string
	// NonEmpty keys must be present and hold an array with at least one element.
	NonEmpty []string
}

var (
	Freeform = Schema{
		Name:     string(models.ModeFreeform),
		Required: []string{"nodes", "edges"},
		NonEmpty: []string{"nodes"},
	}
	Structured = Schema{
		Name:     string(models.ModeStructured),
		Required: []string{"nodes", "edges", "suspects"},
		NonEmpty: []string{"nodes"},
	}
	Meta = Schema{
		Name:     "meta",
		Required: []string{"caseTitle", "caseDescription", "plotSummary", "mastermindIndex", "suspectOutlines"},
		NonEmpty: []string{"suspectOutlines"},
	}
	Suspect = Schema{
		Name:     "suspect",
		Required: []string{"evidence", "interrogationScript"},
	}
	Climax = Schema{
		Name:     "climax",
		Required: []string{"unraveling"},
	}
)

// ForMode returns the schema of a single-shot mode.
func ForMode(mode models.GenerationMode) (Schema, error) {
	switch mode {
	case models.ModeFreeform:
		return Freeform, nil
	case models.ModeStructured:
		return Structured, nil
	case models.ModeMultiPhase:
		return Schema{}, errors.New("multi-phase payloads are validated per phase", slog.String("mode", string(mode)))
	default:
		return Schema{}, errors.New("unknown generation mode", slog.String("mode", string(mode)))
	}
}

// Keys returns every key the schema mentions, in declaration order and without duplicates.
func (s Schema) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, k := range append(append([]string(nil), s.Required...), s.NonEmpty...) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Validate checks a sanitized JSON payload.
//
// A key that is absent, or a NonEmpty key that is not a non-empty array, is reported in a *SchemaIncompleteError.
// Content of the values is not inspected.
func (s Schema) Validate(payload string) error {
	if !gjson.Valid(payload) {
		return errors.New("payload is not valid JSON", slog.String("schema", s.Name))
	}
	root := gjson.Parse(payload)
	if !root.IsObject() {
		return &SchemaIncompleteError{Schema: s.Name, Missing: s.Keys()}
	}

	var missing []string
	for _, key := range s.Keys() {
		value := root.Get(key)
		if !value.Exists() {
			missing = append(missing, key)
			continue
		}
		if s.requiresNonEmpty(key) && (!value.IsArray() || len(value.Array()) == 0) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &SchemaIncompleteError{Schema: s.Name, Missing: missing}
	}
	return nil
}

func (s Schema) requiresNonEmpty(key string) bool {
	for _, k := range s.NonEmpty {
		if k == key {
			return true
		}
	}
	return false
}
