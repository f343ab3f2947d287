package main

import (
	"context"
	"github.com/google/uuid"
	"github.com/myrjola/casegen/internal/ai"
	"github.com/myrjola/casegen/internal/broker"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/generation"
	"github.com/myrjola/casegen/internal/imagegen"
	"github.com/myrjola/casegen/internal/logging"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/repositories"
	"log/slog"
	"sync"
	"sync/atomic"
)

// runEvent is streamed to the subscribers of a run.
type runEvent struct {
	generation.Progress
	// Error is the user-facing failure message of a failed run.
	Error string `json:"error,omitempty"`
	// CaseID is set once the finished case can be fetched.
	CaseID string `json:"caseId,omitempty"`
}

func eventFromRecord(record models.RunRecord) runEvent {
	event := runEvent{
		Progress: generation.Progress{
			RunID:   record.ID,
			Phase:   generation.Phase(record.Phase),
			Percent: record.Percent,
			Stage:   record.Stage,
		},
		Error: record.Failure,
	}
	if event.Phase == generation.PhaseDone {
		event.CaseID = record.ID
	}
	return event
}

type runnerDeps struct {
	generator       ai.Generator
	images          *imagegen.Generator
	runs            *repositories.RunRepository
	cases           *repositories.CaseRepository
	progress        *broker.ChannelBroker[string, runEvent]
	imageCredential string
	defaults        generation.Config
}

// runner executes generation runs in the background. Each run gets its own goroutine. The run's progress is
// persisted and published to the broker under the run id.
type runner struct {
	runnerDeps
	ctx    context.Context
	logger *slog.Logger
	wg     sync.WaitGroup
	active atomic.Int64
}

func newRunner(ctx context.Context, logger *slog.Logger, deps runnerDeps) *runner {
	return &runner{
		runnerDeps: deps,
		ctx:        ctx,
		logger:     logger.With(slog.String("source", "Runner")),
	}
}

// start validates cfg, records the run and starts it. Empty fields of genCfg are taken from the defaults.
func (r *runner) start(ctx context.Context, cfg models.GenerationConfig, genCfg generation.Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if genCfg.Provider == "" {
		genCfg.Provider = r.defaults.Provider
	}
	if genCfg.Credential == "" {
		genCfg.Credential = r.defaults.Credential
	}

	record := models.RunRecord{ //nolint:exhaustruct // this is better for readability
		ID:     uuid.NewString(),
		Mode:   cfg.Mode,
		Config: cfg.Clone(),
		Phase:  string(generation.PhaseIdle),
		Stage:  "Waiting to start",
	}
	if err := r.runs.Upsert(ctx, record); err != nil {
		return "", errors.Wrap(err, "record run")
	}
	r.progress.Open(record.ID)

	r.wg.Add(1)
	r.active.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.active.Add(-1)
		defer r.progress.Close(record.ID)
		defer func() {
			if recovered := recover(); recovered != nil {
				r.logger.LogAttrs(r.ctx, slog.LevelError, "run panicked",
					slog.String("run_id", record.ID), slog.Any("panic", recovered))
				r.finish(record, errors.New("run panicked"))
			}
		}()
		r.execute(record, genCfg)
	}()
	return record.ID, nil
}

func (r *runner) execute(record models.RunRecord, genCfg generation.Config) {
	ctx := logging.WithAttrs(r.ctx, slog.String("run_id", record.ID))
	orchestrator := generation.NewOrchestrator(r.logger, r.generator, genCfg)

	_, err := orchestrator.Run(ctx, record.Config, generation.Options{
		RunID: record.ID,
		OnProgress: func(p generation.Progress) {
			// The terminal states are published by finish once the case is stored.
			if p.Phase.Terminal() {
				return
			}
			record.Phase, record.Percent, record.Stage = string(p.Phase), p.Percent, p.Stage
			r.save(ctx, record)
			r.progress.Publish(record.ID, runEvent{Progress: p})
		},
		OnComplete: func(result generation.Result) {
			err := r.store(ctx, result, r.imageCredentialFor(genCfg))
			if err == nil {
				record.Phase, record.Percent = string(generation.PhaseDone), generation.ProgressDone
				record.Stage = "Case ready"
			}
			r.finish(record, err)
		},
	})
	if err != nil {
		r.finish(record, err)
	}
}

// store illustrates the evidence of result and saves the case.
func (r *runner) store(ctx context.Context, result generation.Result, imageCredential string) error {
	keys := r.images.BatchGenerate(ctx, result.Nodes, result.RunID, imageCredential)
	stored := models.StoredCase{ //nolint:exhaustruct // this is better for readability
		ID:       result.RunID,
		Title:    result.Title(),
		Mode:     result.Mode,
		Graph:    models.Graph{Nodes: imagegen.Apply(result.Nodes, keys), Edges: result.Edges},
		Metadata: result.RawMetadata,
	}
	// The case is stored even when the run is cancelled after generation finished.
	if err := r.cases.Save(context.WithoutCancel(ctx), stored); err != nil {
		return errors.Wrap(err, "save case")
	}
	return nil
}

// finish records the terminal state of the run and publishes it.
func (r *runner) finish(record models.RunRecord, err error) {
	ctx := logging.WithAttrs(context.WithoutCancel(r.ctx), slog.String("run_id", record.ID))
	if err != nil {
		record.Phase = string(generation.PhaseFailed)
		record.Failure = generation.UserMessage(err)
		r.logger.LogAttrs(ctx, slog.LevelWarn, "run failed", errors.SlogError(err))
	} else {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "run finished")
	}
	r.save(ctx, record)
	r.progress.Publish(record.ID, eventFromRecord(record))
}

func (r *runner) save(ctx context.Context, record models.RunRecord) {
	if err := r.runs.Upsert(context.WithoutCancel(ctx), record); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to record run progress", errors.SlogError(err))
	}
}

// imageCredentialFor returns the credential for the evidence images of a run.
func (r *runner) imageCredentialFor(genCfg generation.Config) string {
	if (ai.Request{Credential: genCfg.Credential}).Simulated() {
		return ai.SimulationCredential
	}
	if r.imageCredential != "" {
		return r.imageCredential
	}
	if genCfg.Provider == ai.ProviderOpenAI {
		return genCfg.Credential
	}
	return ai.SimulationCredential
}

// running returns the number of runs that have not finished yet.
func (r *runner) running() int64 {
	return r.active.Load()
}

// wait blocks until every started run has finished.
func (r *runner) wait() {
	r.wg.Wait()
}
