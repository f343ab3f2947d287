package main

import (
	"encoding/json"
	"fmt"
	"github.com/myrjola/casegen/internal/ai"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/generation"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/repositories"
	"log/slog"
	"net/http"
)

// maxRunRequestBytes bounds the body of a run request.
const maxRunRequestBytes = 1 << 20

type startRunRequest struct {
	Config models.GenerationConfig `json:"config"`
	// Provider and Credential override the server defaults for this run. The credential is never stored.
	Provider   ai.Provider `json:"provider,omitempty"`
	Credential string      `json:"credential,omitempty"`
}

type startRunResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
	Events string `json:"events"`
}

// startRun validates the submitted config and starts a generation run in the background.
func (app *application) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		app.clientError(w, r, http.StatusBadRequest, "Please check the case settings: the request is not valid JSON.")
		return
	}
	switch req.Provider {
	case "", ai.ProviderOpenAI, ai.ProviderGemini, ai.ProviderAnthropic:
	default:
		app.clientError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Please check the case settings: unknown provider %q.", req.Provider))
		return
	}

	runID, err := app.runner.start(r.Context(), req.Config,
		generation.Config{Provider: req.Provider, Credential: req.Credential})
	if err != nil {
		if errors.Is(err, models.ErrInvalidConfig) {
			app.clientError(w, r, http.StatusBadRequest, generation.UserMessage(err))
			return
		}
		app.serverError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/runs/"+runID)
	app.writeJSON(w, r, http.StatusAccepted, startRunResponse{
		RunID:  runID,
		Status: "/api/runs/" + runID,
		Events: "/api/runs/" + runID + "/events",
	})
}

// getRun returns the latest recorded state of a run.
func (app *application) getRun(w http.ResponseWriter, r *http.Request) {
	record, err := app.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			app.notFound(w, r, "Run not found.")
			return
		}
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, record)
}

// runEvents streams the progress of a run as server-sent events until the run is done or failed.
//
// Runs that are already finished, or that were started by another process, get their recorded state as a single
// event.
func (app *application) runEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	events, live := app.runner.progress.Subscribe(id)
	if !live {
		record, err := app.runs.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				app.notFound(w, r, "Run not found.")
				return
			}
			app.serverError(w, r, err)
			return
		}
		app.startEventStream(w)
		_ = app.writeEvent(w, r, eventFromRecord(record))
		return
	}
	defer app.runner.progress.Unsubscribe(id, events)

	app.startEventStream(w)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := app.writeEvent(w, r, event); err != nil {
				return
			}
		}
	}
}

func (app *application) startEventStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func (app *application) writeEvent(w http.ResponseWriter, r *http.Request, event runEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if _, err = fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "event stream closed", errors.SlogError(err))
		return errors.Wrap(err, "write event")
	}
	if err = http.NewResponseController(w).Flush(); err != nil {
		return errors.Wrap(err, "flush event")
	}
	return nil
}
