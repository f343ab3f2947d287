package ai_test

import (
	"context"
	"github.com/myrjola/casegen/internal/ai"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/sanitize"
	"github.com/myrjola/casegen/internal/schema"
	"github.com/myrjola/casegen/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
	"time"
)

func TestClient_simulation(t *testing.T) {
	client := ai.NewClient(testhelpers.NewLogger(io.Discard), ai.Config{})

	tests := []struct {
		phase  ai.Phase
		schema schema.Schema
	}{
		{phase: ai.Phase{Name: ai.PhaseFreeform}, schema: schema.Freeform},
		{phase: ai.Phase{Name: ai.PhaseStructured, Total: 4}, schema: schema.Structured},
		{phase: ai.Phase{Name: ai.PhaseMeta, Total: 2}, schema: schema.Meta},
		{phase: ai.Phase{Name: ai.PhaseSuspect, Index: 1, Total: 2}, schema: schema.Suspect},
		{phase: ai.Phase{Name: ai.PhaseClimax, Total: 2}, schema: schema.Climax},
	}
	for _, tt := range tests {
		t.Run(tt.phase.Name, func(t *testing.T) {
			ctx := ai.WithPhase(context.Background(), tt.phase)
			for _, credential := range []string{"", ai.SimulationCredential} {
				raw, err := client.Generate(ctx, ai.Request{Provider: ai.ProviderOpenAI, Credential: credential})
				require.NoError(t, err)

				text, err := sanitize.Sanitize(raw)
				require.NoError(t, err)
				require.NoError(t, tt.schema.Validate(text))
			}
		})
	}
}

func TestClient_simulationIsDeterministic(t *testing.T) {
	client := ai.NewClient(testhelpers.NewLogger(io.Discard), ai.Config{})
	ctx := ai.WithPhase(context.Background(), ai.Phase{Name: ai.PhaseMeta, Total: 3})

	first, err := client.Generate(ctx, ai.Request{Credential: ai.SimulationCredential})
	require.NoError(t, err)
	second, err := client.Generate(ctx, ai.Request{Credential: ai.SimulationCredential})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestClient_unknownProvider(t *testing.T) {
	client := ai.NewClient(testhelpers.NewLogger(io.Discard), ai.Config{})
	_, err := client.Generate(context.Background(), ai.Request{Provider: "mystery", Credential: "sk-test"})
	require.ErrorIs(t, err, ai.ErrUnknownProvider)
}

func TestSimulator_unknownPhase(t *testing.T) {
	_, err := ai.NewSimulator().Generate(context.Background(), ai.Request{})
	require.Error(t, err)
}

func TestSimulator_cancelled(t *testing.T) {
	sim := &ai.Simulator{Delay: time.Minute}
	ctx, cancel := context.WithCancel(ai.WithPhase(context.Background(), ai.Phase{Name: ai.PhaseMeta}))
	cancel()

	_, err := sim.Generate(ctx, ai.Request{})
	require.True(t, errors.Is(err, context.Canceled))
}

func TestPhaseFrom(t *testing.T) {
	require.Equal(t, ai.Phase{}, ai.PhaseFrom(context.Background()))
	ctx := ai.WithPhase(context.Background(), ai.Phase{Name: ai.PhaseSuspect, Index: 2, Total: 5})
	require.Equal(t, ai.Phase{Name: ai.PhaseSuspect, Index: 2, Total: 5}, ai.PhaseFrom(ctx))
}
