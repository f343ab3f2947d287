package prompts_test

import (
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/prompts"
	"github.com/myrjola/casegen/internal/schema"
	"github.com/stretchr/testify/require"
	"strconv"
	"testing"
)

var structuredConfig = models.GenerationConfig{
	Mode:               models.ModeStructured,
	Industry:           "finance",
	Topic:              "embezzlement",
	Location:           "Helsinki",
	Difficulty:         models.DifficultyHard,
	SuspectCount:       3,
	Diversity:          models.Diversity{GenderBalance: true},
	Overrides:          []models.SuspectOverride{{Index: 1, Gender: "female", AgeRange: "50-60"}},
	LearningObjectives: []string{"Segregation of duties"},
}

var meta = models.CaseMeta{
	CaseTitle:       "The Vanishing Ledger",
	CaseDescription: "Money went missing.",
	PlotSummary:     "The controller did it.",
	MastermindIndex: 2,
	SuspectOutlines: []models.SuspectOutline{{Name: "Avery"}, {Name: "Jordan"}, {Name: "Riley"}},
}

func TestPrompts_embedRequiredKeys(t *testing.T) {
	freeform := models.GenerationConfig{Mode: models.ModeFreeform, Story: "A museum heist.",
		LearningObjectives: []string{"Phishing awareness"}}

	tests := []struct {
		name   string
		prompt prompts.Prompt
		schema schema.Schema
	}{
		{name: "freeform", prompt: prompts.Freeform(freeform), schema: schema.Freeform},
		{name: "structured", prompt: prompts.Structured(structuredConfig), schema: schema.Structured},
		{name: "meta", prompt: prompts.Meta(structuredConfig), schema: schema.Meta},
		{name: "suspect", prompt: prompts.Suspect(structuredConfig, meta, 1), schema: schema.Suspect},
		{name: "climax", prompt: prompts.Climax(structuredConfig, meta, nil), schema: schema.Climax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEmpty(t, tt.prompt.User)
			for _, key := range tt.schema.Keys() {
				require.Contains(t, tt.prompt.System, strconv.Quote(key))
			}
		})
	}
}

func TestPrompts_deterministic(t *testing.T) {
	require.Equal(t, prompts.Structured(structuredConfig), prompts.Structured(structuredConfig))
	require.Equal(t, prompts.Suspect(structuredConfig, meta, 0), prompts.Suspect(structuredConfig, meta, 0))
}

func TestStructured_directives(t *testing.T) {
	p := prompts.Structured(structuredConfig)
	require.Contains(t, p.System, `"sourceHandle" "true" or "false"`)
	require.Contains(t, p.System, "exactly 3 suspect nodes")
	require.Contains(t, p.System, "3 distractors")
	require.Contains(t, p.User, "Balance the genders")
	require.Contains(t, p.User, "Suspect 2: gender female, age 50-60")
	require.Contains(t, p.User, "Location: Helsinki")
}

func TestSuspect_parameterisedByIndex(t *testing.T) {
	innocent := prompts.Suspect(structuredConfig, meta, 0)
	culprit := prompts.Suspect(structuredConfig, meta, 2)
	require.Contains(t, innocent.System, "suspect 1 of 3")
	require.Contains(t, innocent.System, "innocent")
	require.Contains(t, culprit.System, "culprit")
	require.Contains(t, culprit.User, "Riley")

	overridden := prompts.Suspect(structuredConfig, meta, 1)
	require.Contains(t, overridden.User, "[DEMOGRAPHICS]")
	require.NotContains(t, innocent.User, "[DEMOGRAPHICS]")
}

func TestClimax_namesMastermind(t *testing.T) {
	p := prompts.Climax(structuredConfig, meta, []models.SuspectRecord{{
		SuspectOutline: meta.SuspectOutlines[0],
		SuspectDetail:  models.SuspectDetail{Evidence: []models.EvidenceDocument{{Label: "Invoice"}}},
	}})
	require.Contains(t, p.User, `"name": "Riley"`)
	require.Contains(t, p.User, "Avery: Invoice")
}

func TestFor(t *testing.T) {
	_, err := prompts.For(models.ModeMultiPhase, structuredConfig)
	require.Error(t, err)

	p, err := prompts.For(models.ModeStructured, structuredConfig)
	require.NoError(t, err)
	require.Equal(t, prompts.Structured(structuredConfig), p)
}
