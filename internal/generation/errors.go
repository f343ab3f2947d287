package generation

import (
	"fmt"
	"github.com/myrjola/casegen/internal/ai"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/graph"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/sanitize"
	"github.com/myrjola/casegen/internal/schema"
	"log/slog"
	"strings"
)

var (
	ErrGenerationService = errors.NewSentinel("generation service call failed")
	ErrPartialBuild      = errors.NewSentinel("suspect phase failed")
	ErrGraphInvariant    = errors.NewSentinel("assembled graph is malformed")
	ErrRunFinished       = errors.NewSentinel("run has already finished")
)

// GenerationServiceError carries the provider's own message.
type GenerationServiceError struct {
	Phase    string
	Provider ai.Provider
	Message  string
	cause    error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("%s phase: %s: %s", e.Phase, e.Provider, e.Message)
}

func (e *GenerationServiceError) Unwrap() error {
	return e.cause
}

func (e *GenerationServiceError) Is(target error) bool {
	return target == ErrGenerationService
}

func (e *GenerationServiceError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("msg", ErrGenerationService.Error()),
		slog.String("phase", e.Phase),
		slog.String("provider", string(e.Provider)),
		errors.SlogError(e.cause),
	)
}

// PartialBuildError names the suspect whose phase failed. The suspects generated before it are discarded.
type PartialBuildError struct {
	SuspectIndex int
	cause        error
}

func (e *PartialBuildError) Error() string {
	return fmt.Sprintf("suspect %d: %v", e.SuspectIndex, e.cause)
}

func (e *PartialBuildError) Unwrap() error {
	return e.cause
}

func (e *PartialBuildError) Is(target error) bool {
	return target == ErrPartialBuild
}

func (e *PartialBuildError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("msg", ErrPartialBuild.Error()),
		slog.Int("suspect_index", e.SuspectIndex),
		errors.SlogError(e.cause),
	)
}

// GraphInvariantError lists the structural problems of an assembled graph.
type GraphInvariantError struct {
	Violations []graph.Violation
}

func (e *GraphInvariantError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "assembled graph is malformed: " + strings.Join(parts, "; ")
}

func (e *GraphInvariantError) Is(target error) bool {
	return target == ErrGraphInvariant
}

// UserMessage turns any run error into a message that can be shown to the author as is.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	prefix := ""
	var partial *PartialBuildError
	if errors.As(err, &partial) {
		prefix = fmt.Sprintf("Suspect %d could not be generated. ", partial.SuspectIndex+1)
	}

	var (
		serviceErr    *GenerationServiceError
		formatErr     *sanitize.ResponseFormatError
		repairErr     *sanitize.JSONRepairFailure
		incompleteErr *schema.SchemaIncompleteError
		invalidErr    *schema.SchemaInvalidError
		configErr     *models.ConfigError
		invariantErr  *GraphInvariantError
	)
	var msg string
	switch {
	case errors.As(err, &configErr):
		msg = "Please check the case settings: " + strings.Join(configErr.Problems, "; ") + "."
	case errors.As(err, &serviceErr):
		msg = "The generation service reported an error: " + serviceErr.Message
	case errors.As(err, &formatErr):
		msg = "The generation service did not return a case. Please try again."
	case errors.As(err, &repairErr):
		msg = "The generated case was malformed and could not be repaired. Please try again."
	case errors.As(err, &incompleteErr):
		msg = fmt.Sprintf("The generated case is missing %s. Try fewer suspects or learning objectives.",
			strings.Join(incompleteErr.Missing, ", "))
	case errors.As(err, &invalidErr):
		msg = fmt.Sprintf("The generated case has an invalid %s. Please try again.", invalidErr.Field)
	case errors.As(err, &invariantErr):
		msg = "The case could not be assembled into a playable graph."
	default:
		msg = "Case generation failed unexpectedly. Please try again."
	}
	return prefix + msg
}
