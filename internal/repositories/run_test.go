package repositories_test

import (
	"context"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/repositories"
	"github.com/myrjola/casegen/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

func newRun(id string, phase string) models.RunRecord {
	return models.RunRecord{ //nolint:exhaustruct // this is better for readability
		ID:   id,
		Mode: models.ModeMultiPhase,
		Config: models.GenerationConfig{ //nolint:exhaustruct // this is better for readability
			Mode:         models.ModeMultiPhase,
			Industry:     "finance",
			Topic:        "embezzlement",
			SuspectCount: 3,
		},
		Phase: phase,
	}
}

func TestRunRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewRunRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	run := newRun("run-1", "meta")
	run.Percent = 0
	require.NoError(t, repo.Upsert(ctx, run))

	run.Phase = "failed"
	run.Percent = 50
	run.Stage = "Detailing suspect 2 of 3"
	run.Failure = "Suspect 2 could not be generated."
	run.Config.Topic = "ignored on update"
	require.NoError(t, repo.Upsert(ctx, run))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "failed", got.Phase)
	require.Equal(t, 50, got.Percent)
	require.Equal(t, "Detailing suspect 2 of 3", got.Stage)
	require.Equal(t, "Suspect 2 could not be generated.", got.Failure)
	require.Equal(t, "embezzlement", got.Config.Topic)
	require.False(t, got.Created.IsZero())
	require.False(t, got.Updated.Before(got.Created))
}

func TestRunRepository_Get_notFound(t *testing.T) {
	repo := repositories.NewRunRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRunRepository_FailUnfinished(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewRunRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	for id, phase := range map[string]string{"a": "meta", "b": "suspects", "c": "done", "d": "failed"} {
		require.NoError(t, repo.Upsert(ctx, newRun(id, phase)))
	}

	affected, err := repo.FailUnfinished(ctx, "interrupted")
	require.NoError(t, err)
	require.Equal(t, int64(2), affected)

	tests := []struct {
		id          string
		wantPhase   string
		wantFailure string
	}{
		{id: "a", wantPhase: "failed", wantFailure: "interrupted"},
		{id: "b", wantPhase: "failed", wantFailure: "interrupted"},
		{id: "c", wantPhase: "done", wantFailure: ""},
		{id: "d", wantPhase: "failed", wantFailure: ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, getErr := repo.Get(ctx, tt.id)
			require.NoError(t, getErr)
			require.Equal(t, tt.wantPhase, got.Phase)
			require.Equal(t, tt.wantFailure, got.Failure)
		})
	}
}
