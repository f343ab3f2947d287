// Package generation runs a case generation from a validated config to a playable graph.
//
// A run is a sequence of steps over an explicit RunState. Every step makes at most one call to the generation
// service, recovers JSON from the reply and checks it before the state moves on. The first failure ends the run.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	"github.com/myrjola/casegen/internal/ai"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/graph"
	"github.com/myrjola/casegen/internal/logging"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/prompts"
	"github.com/myrjola/casegen/internal/sanitize"
	"github.com/myrjola/casegen/internal/schema"
	"log/slog"
)

// Config selects the provider and credential of every call in a run.
type Config struct {
	Provider   ai.Provider
	Credential string
}

type Orchestrator struct {
	logger    *slog.Logger
	generator ai.Generator
	cfg       Config
}

func NewOrchestrator(logger *slog.Logger, generator ai.Generator, cfg Config) *Orchestrator {
	return &Orchestrator{
		logger:    logger.With(slog.String("source", "Orchestrator")),
		generator: generator,
		cfg:       cfg,
	}
}

type Options struct {
	// RunID is generated when empty.
	RunID string
	// OnProgress is called with the initial state and after every step, including the failing one.
	OnProgress func(Progress)
	// OnComplete is called once with the result of a successful run.
	OnComplete func(Result)
}

// Run validates cfg and steps through a run until it is done or failed.
func (o *Orchestrator) Run(ctx context.Context, cfg models.GenerationConfig, opts Options) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	notify := func(p Progress) {
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	}

	state := NewRunState(runID, cfg)
	notify(state.Progress())
	for !state.Phase.Terminal() {
		var err error
		state, err = o.Step(ctx, state)
		notify(state.Progress())
		if err != nil {
			return Result{}, err
		}
	}

	result := *state.Result
	if opts.OnComplete != nil {
		opts.OnComplete(result)
	}
	return result, nil
}

// Step performs the next transition of state and returns the new state. The given state is not modified.
//
// On failure the returned state is in PhaseFailed with everything generated so far discarded, and the error is
// one of the typed run errors.
func (o *Orchestrator) Step(ctx context.Context, state RunState) (RunState, error) {
	if state.Phase.Terminal() {
		return state, errors.Wrap(ErrRunFinished, "step run", slog.String("phase", string(state.Phase)))
	}
	ctx = logging.WithAttrs(ctx, slog.String("run_id", state.RunID), slog.String("mode", string(state.Mode)))

	var (
		next    RunState
		attempt Phase
		err     error
	)
	switch {
	case state.Mode.SingleShot() && state.Phase == PhaseIdle:
		next = state.clone()
		next.Phase, next.Percent, next.Stage = PhaseGenerating, ProgressGenerating, "Generating case"
	case state.Mode.SingleShot() && state.Phase == PhaseGenerating:
		attempt = PhaseGenerating
		next, err = o.generateSingleShot(ctx, state.clone())
	case state.Mode == models.ModeMultiPhase && state.Phase == PhaseIdle:
		attempt = PhaseMeta
		next, err = o.planCase(ctx, state.clone())
	case state.Mode == models.ModeMultiPhase && (state.Phase == PhaseMeta ||
		state.Phase == PhaseSuspects && state.SuspectIndex < state.SuspectTotal):
		attempt = PhaseSuspects
		next, err = o.detailSuspect(ctx, state.clone())
	case state.Mode == models.ModeMultiPhase && state.Phase == PhaseSuspects:
		attempt = PhaseClimax
		next, err = o.writeClimax(ctx, state.clone())
	case state.Mode == models.ModeMultiPhase && state.Phase == PhaseClimax:
		attempt = PhaseDone
		next, err = o.assembleCase(state.clone())
	default:
		attempt = state.Phase
		err = errors.New("no transition from phase",
			slog.String("mode", string(state.Mode)), slog.String("phase", string(state.Phase)))
	}

	if err != nil {
		o.logger.LogAttrs(ctx, slog.LevelError, "run failed",
			slog.String("phase", string(attempt)), errors.SlogError(err))
		return fail(state, attempt, err), err
	}
	o.logger.LogAttrs(ctx, slog.LevelInfo, "run advanced",
		slog.String("phase", string(next.Phase)), slog.Int("percent", next.Percent))
	return next, nil
}

func fail(state RunState, attempt Phase, err error) RunState {
	out := state
	out.Phase = PhaseFailed
	out.Stage = "Generation failed"
	out.Meta, out.Suspects, out.Climax, out.Result = nil, nil, nil, nil
	out.Failure = &Failure{Phase: attempt, Message: UserMessage(err), Detail: err.Error()}
	var partial *PartialBuildError
	if errors.As(err, &partial) {
		index := partial.SuspectIndex
		out.Failure.SuspectIndex = &index
	}
	return out
}

func (o *Orchestrator) planCase(ctx context.Context, state RunState) (RunState, error) {
	n := state.Config.SuspectCount
	raw, err := o.call(ctx, ai.Phase{Name: ai.PhaseMeta, Total: n}, prompts.Meta(state.Config))
	if err != nil {
		return state, err
	}

	var meta models.CaseMeta
	if err = decode(raw, schema.Meta, &meta); err != nil {
		return state, err
	}
	if len(meta.SuspectOutlines) < n {
		return state, &schema.SchemaInvalidError{Schema: schema.Meta.Name, Field: "suspectOutlines",
			Reason: fmt.Sprintf("got %d outlines for %d suspects", len(meta.SuspectOutlines), n)}
	}
	if len(meta.SuspectOutlines) > n {
		o.logger.LogAttrs(ctx, slog.LevelWarn, "dropping extra suspect outlines",
			slog.Int("outlines", len(meta.SuspectOutlines)), slog.Int("suspect_count", n))
		meta.SuspectOutlines = meta.SuspectOutlines[:n]
	}
	if meta.MastermindIndex < 0 || meta.MastermindIndex >= n {
		return state, &schema.SchemaInvalidError{Schema: schema.Meta.Name, Field: "mastermindIndex",
			Reason: fmt.Sprintf("%d is outside [0, %d)", meta.MastermindIndex, n)}
	}

	state.Meta = &meta
	state.Phase, state.Percent, state.Stage = PhaseMeta, ProgressMeta, "Case planned"
	state.SuspectIndex, state.SuspectTotal = 0, n
	return state, nil
}

// detailSuspect generates the suspect at state.SuspectIndex and appends it to a copy of the accumulator.
func (o *Orchestrator) detailSuspect(ctx context.Context, state RunState) (RunState, error) {
	i, n := state.SuspectIndex, state.SuspectTotal
	ctx = logging.WithAttrs(ctx, slog.Int("suspect_index", i))

	raw, err := o.call(ctx, ai.Phase{Name: ai.PhaseSuspect, Index: i, Total: n},
		prompts.Suspect(state.Config, *state.Meta, i))
	if err != nil {
		return state, &PartialBuildError{SuspectIndex: i, cause: err}
	}
	var detail models.SuspectDetail
	if err = decode(raw, schema.Suspect, &detail); err != nil {
		return state, &PartialBuildError{SuspectIndex: i, cause: err}
	}
	for j, e := range detail.Evidence {
		for k, q := range e.Questions {
			detail.Evidence[j].Questions[k] = q.NormalizeDistractors()
		}
	}
	if len(detail.Evidence) != models.TargetEvidencePerSuspect {
		o.logger.LogAttrs(ctx, slog.LevelDebug, "evidence count differs from target",
			slog.Int("evidence", len(detail.Evidence)))
	}

	state.Suspects = append(state.Suspects, models.SuspectRecord{
		SuspectOutline: state.Meta.SuspectOutlines[i],
		SuspectDetail:  detail,
	})
	state.SuspectIndex = i + 1
	state.Phase = PhaseSuspects
	state.Percent = suspectPercent(i+1, n)
	state.Stage = suspectStage(i+1, n)
	return state, nil
}

func (o *Orchestrator) writeClimax(ctx context.Context, state RunState) (RunState, error) {
	raw, err := o.call(ctx, ai.Phase{Name: ai.PhaseClimax, Total: state.SuspectTotal},
		prompts.Climax(state.Config, *state.Meta, state.Suspects))
	if err != nil {
		return state, err
	}
	var climax models.Climax
	if err = decode(raw, schema.Climax, &climax); err != nil {
		return state, err
	}
	state.Climax = &climax
	state.Phase, state.Percent, state.Stage = PhaseClimax, ProgressClimax, "Finale written"
	return state, nil
}

func (o *Orchestrator) assembleCase(state RunState) (RunState, error) {
	g := graph.Assemble(*state.Meta, state.Suspects, *state.Climax)
	if violations := graph.Check(g, graph.CheckOptions{StartID: graph.StartID, SequentialSuspects: true}); len(violations) > 0 {
		return state, &GraphInvariantError{Violations: violations}
	}

	state.Result = &Result{
		RunID: state.RunID,
		Mode:  state.Mode,
		Nodes: g.Nodes,
		Edges: g.Edges,
		RawMetadata: map[string]any{
			"caseTitle":       state.Meta.CaseTitle,
			"caseDescription": state.Meta.CaseDescription,
			"plotSummary":     state.Meta.PlotSummary,
			"mastermindIndex": state.Meta.MastermindIndex,
			"suspectOutlines": state.Meta.SuspectOutlines,
			"confrontation":   state.Climax.Confrontation,
		},
	}
	state.Meta, state.Suspects, state.Climax = nil, nil, nil
	state.Phase, state.Percent, state.Stage = PhaseDone, ProgressDone, "Case ready"
	return state, nil
}

func (o *Orchestrator) generateSingleShot(ctx context.Context, state RunState) (RunState, error) {
	prompt, err := prompts.For(state.Mode, state.Config)
	if err != nil {
		return state, err
	}
	s, err := schema.ForMode(state.Mode)
	if err != nil {
		return state, err
	}
	raw, err := o.call(ctx, ai.Phase{Name: string(state.Mode), Total: state.Config.SuspectCount}, prompt)
	if err != nil {
		return state, err
	}

	var fields map[string]json.RawMessage
	if err = decode(raw, s, &fields); err != nil {
		return state, err
	}
	var g models.Graph
	if err = json.Unmarshal(fields["nodes"], &g.Nodes); err != nil {
		return state, invalidField(s, "nodes", err)
	}
	if err = json.Unmarshal(fields["edges"], &g.Edges); err != nil {
		return state, invalidField(s, "edges", err)
	}

	metadata := make(map[string]any)
	for key, value := range fields {
		if key == "nodes" || key == "edges" {
			continue
		}
		var v any
		if err = json.Unmarshal(value, &v); err == nil {
			metadata[key] = v
		}
	}
	if violations := graph.Check(g, graph.CheckOptions{}); len(violations) > 0 {
		warnings := make([]string, 0, len(violations))
		for _, v := range violations {
			warnings = append(warnings, v.String())
		}
		metadata["warnings"] = warnings
		o.logger.LogAttrs(ctx, slog.LevelWarn, "generated graph breaks invariants",
			slog.Int("violations", len(violations)))
	}

	state.Result = &Result{RunID: state.RunID, Mode: state.Mode, Nodes: g.Nodes, Edges: g.Edges,
		RawMetadata: metadata}
	state.Phase, state.Percent, state.Stage = PhaseDone, ProgressDone, "Case ready"
	return state, nil
}

func (o *Orchestrator) call(ctx context.Context, phase ai.Phase, prompt prompts.Prompt) (string, error) {
	raw, err := o.generator.Generate(ai.WithPhase(ctx, phase), ai.Request{
		Provider:   o.cfg.Provider,
		System:     prompt.System,
		User:       prompt.User,
		Credential: o.cfg.Credential,
	})
	if err != nil {
		return "", &GenerationServiceError{Phase: phase.Name, Provider: o.cfg.Provider, Message: rootMessage(err),
			cause: err}
	}
	return raw, nil
}

// decode sanitizes raw, checks it against s and unmarshals it into v.
func decode(raw string, s schema.Schema, v any) error {
	text, err := sanitize.Sanitize(raw)
	if err != nil {
		return err
	}
	if err = s.Validate(text); err != nil {
		return err
	}
	if err = json.Unmarshal([]byte(text), v); err != nil {
		return invalidField(s, "", err)
	}
	return nil
}

func invalidField(s schema.Schema, field string, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		field = typeErr.Field
	}
	if field == "" {
		field = "payload"
	}
	return &schema.SchemaInvalidError{Schema: s.Name, Field: field, Reason: err.Error()}
}

// rootMessage returns the message of the innermost error, which is the one the provider wrote.
func rootMessage(err error) string {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err.Error()
		}
		err = inner
	}
}
