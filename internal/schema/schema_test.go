package schema_test

import (
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/schema"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name        string
		schema      schema.Schema
		payload     string
		wantMissing []string
	}{
		{
			name:    "freeform accepts nodes and edges",
			schema:  schema.Freeform,
			payload: `{"nodes": [{"id": "start"}], "edges": []}`,
		},
		{
			name:        "structured requires suspects",
			schema:      schema.Structured,
			payload:     `{"nodes": [{"id": "start"}], "edges": []}`,
			wantMissing: []string{"suspects"},
		},
		{
			name:        "empty nodes",
			schema:      schema.Freeform,
			payload:     `{"nodes": [], "edges": []}`,
			wantMissing: []string{"nodes"},
		},
		{
			name:        "nodes is not an array",
			schema:      schema.Freeform,
			payload:     `{"nodes": {"id": "start"}, "edges": []}`,
			wantMissing: []string{"nodes"},
		},
		{
			name:        "truncated meta",
			schema:      schema.Meta,
			payload:     `{"caseTitle": "Ledger", "caseDescription": "A ledger went missing."}`,
			wantMissing: []string{"plotSummary", "mastermindIndex", "suspectOutlines"},
		},
		{
			name:    "suspect phase",
			schema:  schema.Suspect,
			payload: `{"evidence": [], "interrogationScript": "Where were you?"}`,
		},
		{
			name:        "climax without unraveling",
			schema:      schema.Climax,
			payload:     `{"confrontation": "You did it."}`,
			wantMissing: []string{"unraveling"},
		},
		{
			name:        "top level array",
			schema:      schema.Climax,
			payload:     `[{"unraveling": "x"}]`,
			wantMissing: []string{"unraveling"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate(tt.payload)
			if tt.wantMissing == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, schema.ErrSchemaIncomplete)
			var incomplete *schema.SchemaIncompleteError
			require.True(t, errors.As(err, &incomplete))
			require.Equal(t, tt.wantMissing, incomplete.Missing)
			require.Contains(t, err.Error(), schema.ReduceComplexityHint)
		})
	}
}

func TestForMode(t *testing.T) {
	s, err := schema.ForMode(models.ModeStructured)
	require.NoError(t, err)
	require.Equal(t, []string{"nodes", "edges", "suspects"}, s.Keys())

	_, err = schema.ForMode(models.ModeMultiPhase)
	require.Error(t, err)
}
