package generation_test

import (
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/generation"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/sanitize"
	"github.com/myrjola/casegen/internal/schema"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil",
			err:  nil,
			want: "",
		},
		{
			name: "format",
			err:  &sanitize.ResponseFormatError{Length: 12},
			want: "The generation service did not return a case. Please try again.",
		},
		{
			name: "incomplete",
			err:  &schema.SchemaIncompleteError{Schema: "structured", Missing: []string{"suspects"}},
			want: "The generated case is missing suspects. Try fewer suspects or learning objectives.",
		},
		{
			name: "config",
			err:  &models.ConfigError{Problems: []string{"topic is required"}},
			want: "Please check the case settings: topic is required.",
		},
		{
			name: "wrapped invalid",
			err: errors.Wrap(&schema.SchemaInvalidError{Schema: "meta", Field: "mastermindIndex", Reason: "5"},
				"plan case"),
			want: "The generated case has an invalid mastermindIndex. Please try again.",
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: "Case generation failed unexpectedly. Please try again.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, generation.UserMessage(tt.err))
		})
	}
}
