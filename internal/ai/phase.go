package ai

import "context"

// Phase names passed to the provider through the context.
const (
	PhaseFreeform   = "freeform"
	PhaseStructured = "structured"
	PhaseMeta       = "meta"
	PhaseSuspect    = "suspect"
	PhaseClimax     = "climax"
)

// Phase identifies which step of a run a request belongs to.
type Phase struct {
	Name string
	// Index is the suspect index in the suspect phase.
	Index int
	// Total is the number of suspects in the run.
	Total int
}

type phaseKey struct{}

func WithPhase(ctx context.Context, phase Phase) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

// PhaseFrom returns the phase stored in ctx, or a zero Phase.
func PhaseFrom(ctx context.Context) Phase {
	if p, ok := ctx.Value(phaseKey{}).(Phase); ok {
		return p
	}
	return Phase{}
}
