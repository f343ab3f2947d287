package models

import "time"

// StoredCase is a finished case as kept by the caller after a run completes.
type StoredCase struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Mode     GenerationMode `json:"mode"`
	Graph    Graph          `json:"graph"`
	Metadata map[string]any `json:"metadata"`
	Created  time.Time      `json:"created"`
}

// CaseSummary is the listing entry of a stored case.
type CaseSummary struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Mode    GenerationMode `json:"mode"`
	Created time.Time      `json:"created"`
}

// RunRecord is the persisted trace of a generation run. Phase uses the orchestrator's phase names.
type RunRecord struct {
	ID      string           `json:"id"`
	Mode    GenerationMode   `json:"mode"`
	Config  GenerationConfig `json:"config"`
	Phase   string           `json:"phase"`
	Percent int              `json:"percent"`
	Stage   string           `json:"stage"`
	Failure string           `json:"failure,omitempty"`
	Created time.Time        `json:"created"`
	Updated time.Time        `json:"updated"`
}
