package main

import (
	"context"
	"github.com/myrjola/casegen/internal/ai"
	"github.com/myrjola/casegen/internal/e2etest"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/generation"
	"github.com/myrjola/casegen/internal/logging"
	"github.com/myrjola/casegen/internal/models"
	"log/slog"
	"os"
	"time"
)

// TestSimulatedRun generates a case with the offline simulator and fetches the stored result.
func TestSimulatedRun(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second) //nolint:mnd // 30 seconds
	defer cancel()

	cfg := models.GenerationConfig{ //nolint:exhaustruct // this is better for readability
		Mode:         models.ModeMultiPhase,
		Industry:     "finance",
		Topic:        "embezzlement",
		Difficulty:   models.DifficultyMedium,
		SuspectCount: 3, //nolint:mnd // the smallest interesting case.
	}
	runID, err := client.StartRun(ctx, cfg, ai.SimulationCredential)
	if err != nil {
		return errors.Wrap(err, "start run")
	}
	ctx = logging.WithAttrs(ctx, slog.String("run_id", runID))

	events, err := client.Events(ctx, runID)
	if err != nil {
		return errors.Wrap(err, "read events")
	}
	if len(events) == 0 {
		return errors.New("no progress events")
	}
	last := events[len(events)-1]
	if last.Phase != generation.PhaseDone {
		return errors.New("run did not finish", slog.String("phase", string(last.Phase)),
			slog.String("error", last.Error))
	}

	stored, err := client.Case(ctx, last.CaseID)
	if err != nil {
		return errors.Wrap(err, "fetch case")
	}
	if len(stored.Graph.Nodes) == 0 {
		return errors.New("stored case has no nodes")
	}
	return nil
}

func main() {
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug, false)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   = e2etest.NewClient(url)
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestSimulatedRun(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing simulated run", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
