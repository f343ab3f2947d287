// Package sanitize recovers a JSON object from the free text a generation service replies with.
//
// The text is stripped of code fences, sliced to its outermost object and passed through an
// ordered list of idempotent textual repairs before it is parsed.
package sanitize

import (
	"encoding/json"
	"fmt"
	"github.com/myrjola/casegen/internal/errors"
	"log/slog"
	"strings"
)

var (
	// ErrResponseFormat is matched by ResponseFormatError.
	ErrResponseFormat = errors.NewSentinel("no JSON object found")
	// ErrJSONRepair is matched by JSONRepairFailure.
	ErrJSONRepair = errors.NewSentinel("JSON repair failed")
)

// ExcerptRadius is the number of characters kept on both sides of a parse failure.
const ExcerptRadius = 200

// ResponseFormatError means that no JSON object could be located in the text.
type ResponseFormatError struct {
	// Length of the raw response, kept for diagnosis.
	Length int
}

func (e *ResponseFormatError) Error() string {
	return ErrResponseFormat.Error()
}

func (e *ResponseFormatError) Is(target error) bool {
	return target == ErrResponseFormat
}

func (e *ResponseFormatError) LogValue() slog.Value {
	return slog.GroupValue(slog.String("msg", e.Error()), slog.Int("response_length", e.Length))
}

// JSONRepairFailure means that the repaired text still does not parse.
type JSONRepairFailure struct {
	// Offset is the byte offset reported by the parser in the repaired text.
	Offset int64
	// Excerpt is the repaired text around Offset.
	Excerpt string
	cause   error
}

func (e *JSONRepairFailure) Error() string {
	return fmt.Sprintf("JSON repair failed at offset %d: %v", e.Offset, e.cause)
}

func (e *JSONRepairFailure) Unwrap() error {
	return e.cause
}

func (e *JSONRepairFailure) Is(target error) bool {
	return target == ErrJSONRepair
}

func (e *JSONRepairFailure) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("msg", e.Error()),
		slog.Int64("offset", e.Offset),
		slog.String("excerpt", e.Excerpt),
	)
}

var fenceReplacer = strings.NewReplacer("```json", "", "```JSON", "", "```", "")

// Sanitize converts raw generation output into a string that is valid JSON.
//
// It fails with a *ResponseFormatError when no object can be located and with a *JSONRepairFailure when the
// repairs did not produce parseable JSON. It never logs and never retries.
func Sanitize(raw string) (string, error) {
	text := fenceReplacer.Replace(strings.TrimSpace(raw))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", &ResponseFormatError{Length: len(raw)}
	}
	text = text[start : end+1]

	for _, rule := range rules {
		text = rule.Apply(text)
	}

	var scratch any
	if err := json.Unmarshal([]byte(text), &scratch); err != nil {
		var offset int64
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			offset = syntaxErr.Offset
		}
		return "", &JSONRepairFailure{
			Offset:  offset,
			Excerpt: excerpt(text, offset, ExcerptRadius),
			cause:   err,
		}
	}
	return text, nil
}

func excerpt(text string, offset int64, radius int) string {
	from := int(offset) - radius
	if from < 0 {
		from = 0
	}
	to := int(offset) + radius
	if to > len(text) {
		to = len(text)
	}
	if from > to {
		from = to
	}
	return strings.ToValidUTF8(text[from:to], "")
}
