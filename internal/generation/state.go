package generation

import (
	"fmt"
	"github.com/myrjola/casegen/internal/models"
)

// Phase is the state of a run.
//
// Multi-phase runs move idle → meta → suspects → climax → done and single-shot runs idle → generating → done.
// Any phase after idle may move to failed, which is final.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseMeta       Phase = "meta"
	PhaseSuspects   Phase = "suspects"
	PhaseClimax     Phase = "climax"
	PhaseGenerating Phase = "generating"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether no further step is possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Progress percentages at phase boundaries. The suspect phase spreads the span between the meta and climax marks
// evenly over the suspects.
const (
	ProgressMeta       = 15
	ProgressSuspects   = 70
	ProgressClimax     = 90
	ProgressGenerating = 10
	ProgressDone       = 100
)

// Failure records why a run failed.
type Failure struct {
	Phase        Phase  `json:"phase"`
	Message      string `json:"message"`
	SuspectIndex *int   `json:"suspectIndex,omitempty"`
	Detail       string `json:"detail"`
}

// Result is handed to the caller once a run is done.
type Result struct {
	RunID       string                 `json:"runId"`
	Mode        models.GenerationMode  `json:"mode"`
	Nodes       []models.NarrativeNode `json:"nodes"`
	Edges       []models.NarrativeEdge `json:"edges"`
	RawMetadata map[string]any         `json:"rawMetadata,omitempty"`
}

// Graph returns the nodes and edges of the result.
func (r Result) Graph() models.Graph {
	return models.Graph{Nodes: r.Nodes, Edges: r.Edges}
}

// UntitledCase is the title of a result that names none.
const UntitledCase = "Untitled case"

// Title returns the case title from the metadata or, for single-shot results without one, from the start node.
func (r Result) Title() string {
	if title, ok := r.RawMetadata["caseTitle"].(string); ok && title != "" {
		return title
	}
	for _, n := range r.Nodes {
		if n.Type != models.NodeStory {
			continue
		}
		if title, ok := n.Data["title"].(string); ok && title != "" {
			return title
		}
	}
	return UntitledCase
}

// RunState is the complete state of one run. Steps take a state and return the next one without modifying the
// input, so a state can be stored, inspected or replayed.
type RunState struct {
	RunID        string                  `json:"runId"`
	Mode         models.GenerationMode   `json:"mode"`
	Config       models.GenerationConfig `json:"config"`
	Phase        Phase                   `json:"phase"`
	Percent      int                     `json:"percent"`
	Stage        string                  `json:"stage"`
	SuspectIndex int                     `json:"suspectIndex"`
	SuspectTotal int                     `json:"suspectTotal"`
	Meta         *models.CaseMeta        `json:"meta,omitempty"`
	Suspects     []models.SuspectRecord  `json:"suspects,omitempty"`
	Climax       *models.Climax          `json:"climax,omitempty"`
	Result       *Result                 `json:"result,omitempty"`
	Failure      *Failure                `json:"failure,omitempty"`
}

// NewRunState starts a run of cfg. The config is copied so that later changes by the caller are not seen.
func NewRunState(runID string, cfg models.GenerationConfig) RunState {
	state := RunState{
		RunID:  runID,
		Mode:   cfg.Mode,
		Config: cfg.Clone(),
		Phase:  PhaseIdle,
		Stage:  "Waiting to start",
	}
	if cfg.Mode == models.ModeMultiPhase {
		state.SuspectTotal = cfg.SuspectCount
	}
	return state
}

// Progress is the observable part of a run.
type Progress struct {
	RunID        string `json:"runId"`
	Phase        Phase  `json:"phase"`
	Percent      int    `json:"percent"`
	Stage        string `json:"stage"`
	SuspectIndex int    `json:"suspectIndex"`
	SuspectTotal int    `json:"suspectTotal"`
}

func (s RunState) Progress() Progress {
	return Progress{
		RunID:        s.RunID,
		Phase:        s.Phase,
		Percent:      s.Percent,
		Stage:        s.Stage,
		SuspectIndex: s.SuspectIndex,
		SuspectTotal: s.SuspectTotal,
	}
}

// clone copies the parts of the state that steps append to.
func (s RunState) clone() RunState {
	out := s
	out.Suspects = append([]models.SuspectRecord(nil), s.Suspects...)
	return out
}

func suspectPercent(done, total int) int {
	if total <= 0 {
		return ProgressMeta
	}
	return ProgressMeta + ProgressSuspects*done/total
}

func suspectStage(done, total int) string {
	return fmt.Sprintf("Suspect %d of %d ready", done, total)
}
