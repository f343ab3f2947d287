package models

import (
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/myrjola/casegen/internal/errors"
	"log/slog"
	"strings"
)

// GenerationMode selects how a case is generated. It is fixed for the lifetime of one run.
type GenerationMode string

const (
	// ModeFreeform generates the whole graph in one call from a free-text story and learning objectives.
	ModeFreeform GenerationMode = "freeform"
	// ModeStructured generates the whole graph plus a suspect list in one call from structured settings.
	ModeStructured GenerationMode = "structured"
	// ModeMultiPhase plans the case first and then details each suspect and the climax in separate calls.
	ModeMultiPhase GenerationMode = "multiphase"
)

// SingleShot reports whether the mode finishes in a single generation call.
func (m GenerationMode) SingleShot() bool {
	return m == ModeFreeform || m == ModeStructured
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// The suspect bounds are repeated in the validate tag of GenerationConfig.SuspectCount.
const (
	MinSuspects = 2
	MaxSuspects = 8
)

// Diversity holds the cast diversity flags of the structured settings.
type Diversity struct {
	GenderBalance   bool `json:"genderBalance"   yaml:"genderBalance"`
	EthnicDiversity bool `json:"ethnicDiversity" yaml:"ethnicDiversity"`
	AgeRange        bool `json:"ageRange"        yaml:"ageRange"`
}

// SuspectOverride pins demographic details of the suspect at Index.
type SuspectOverride struct {
	Index     int    `json:"index"               yaml:"index"               validate:"min=0"`
	Gender    string `json:"gender,omitempty"    yaml:"gender,omitempty"`
	Ethnicity string `json:"ethnicity,omitempty" yaml:"ethnicity,omitempty"`
	AgeRange  string `json:"ageRange,omitempty"  yaml:"ageRange,omitempty"`
}

// GenerationConfig is the user's submission. Only the fields relevant to Mode are used.
type GenerationConfig struct {
	Mode GenerationMode `json:"mode" yaml:"mode"`

	// Freeform mode.
	Story              string   `json:"story,omitempty"              yaml:"story,omitempty"              validate:"required"`
	LearningObjectives []string `json:"learningObjectives,omitempty" yaml:"learningObjectives,omitempty"`

	// Structured and multi-phase modes.
	Industry     string            `json:"industry,omitempty"     yaml:"industry,omitempty"     validate:"required"`
	Topic        string            `json:"topic,omitempty"        yaml:"topic,omitempty"        validate:"required"`
	Location     string            `json:"location,omitempty"     yaml:"location,omitempty"`
	Date         string            `json:"date,omitempty"         yaml:"date,omitempty"`
	Difficulty   Difficulty        `json:"difficulty,omitempty"   yaml:"difficulty,omitempty"   validate:"omitempty,oneof=easy medium hard"`
	SuspectCount int               `json:"suspectCount,omitempty" yaml:"suspectCount,omitempty" validate:"min=2,max=8"`
	Diversity    Diversity         `json:"diversity"              yaml:"diversity"`
	Overrides    []SuspectOverride `json:"overrides,omitempty"    yaml:"overrides,omitempty"    validate:"dive"`
}

// ErrInvalidConfig is matched by every config validation failure.
var ErrInvalidConfig = errors.NewSentinel("invalid generation config")

// ConfigError lists the problems found in a GenerationConfig.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid generation config: %s", strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ConfigError) LogValue() slog.Value {
	return slog.GroupValue(slog.Any("problems", e.Problems))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate performs the caller-level checks before a run starts. Only the fields used by the mode are checked.
func (c GenerationConfig) Validate() error {
	c.Story = strings.TrimSpace(c.Story)
	c.Industry = strings.TrimSpace(c.Industry)
	c.Topic = strings.TrimSpace(c.Topic)

	var err error
	switch c.Mode {
	case ModeFreeform:
		err = validate.StructPartial(c, "Story")
	case ModeStructured, ModeMultiPhase:
		err = validate.StructExcept(c, "Story")
	default:
		return &ConfigError{Problems: []string{fmt.Sprintf("unknown mode %q", c.Mode)}}
	}

	problems := describeValidation(err)
	if c.Mode != ModeFreeform {
		// Negative indexes are reported by the validate tag.
		for _, o := range c.Overrides {
			if o.Index >= c.SuspectCount {
				problems = append(problems, fmt.Sprintf("override index %d out of range", o.Index))
			}
		}
	}
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// describeValidation turns validator failures into messages an author can act on, in field order.
func describeValidation(err error) []string {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.StructField() {
		case "Story":
			problems = append(problems, "story is required in freeform mode")
		case "Industry":
			problems = append(problems, "industry is required")
		case "Topic":
			problems = append(problems, "topic is required")
		case "SuspectCount":
			problems = append(problems,
				fmt.Sprintf("suspectCount must be between %d and %d", MinSuspects, MaxSuspects))
		case "Difficulty":
			problems = append(problems, fmt.Sprintf("unknown difficulty %q", fe.Value()))
		case "Index":
			problems = append(problems, fmt.Sprintf("override index %v out of range", fe.Value()))
		default:
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return problems
}

// EffectiveDifficulty defaults an empty difficulty to medium.
func (c GenerationConfig) EffectiveDifficulty() Difficulty {
	if c.Difficulty == "" {
		return DifficultyMedium
	}
	return c.Difficulty
}

// Override returns the demographic override for the suspect at index, if any.
func (c GenerationConfig) Override(index int) (SuspectOverride, bool) {
	for _, o := range c.Overrides {
		if o.Index == index {
			return o, true
		}
	}
	return SuspectOverride{}, false
}

// Clone returns a deep copy so that a running generation never shares slices with the caller.
func (c GenerationConfig) Clone() GenerationConfig {
	out := c
	out.LearningObjectives = append([]string(nil), c.LearningObjectives...)
	out.Overrides = append([]SuspectOverride(nil), c.Overrides...)
	return out
}
