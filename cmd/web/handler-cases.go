package main

import (
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/repositories"
	"net/http"
	"strconv"
)

const (
	defaultCaseListLimit = 20
	maxCaseListLimit     = 100
)

// listCases returns the newest cases. The optional limit query parameter caps the number of entries.
func (app *application) listCases(w http.ResponseWriter, r *http.Request) {
	limit := defaultCaseListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCaseListLimit {
			app.clientError(w, r, http.StatusBadRequest, "limit must be a number between 1 and 100.")
			return
		}
		limit = n
	}
	summaries, err := app.cases.List(r.Context(), limit)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, summaries)
}

// getCase returns a finished case with its graph. Image URLs are resolved per request since presigned URLs expire.
func (app *application) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := app.cases.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			app.notFound(w, r, "Case not found.")
			return
		}
		app.serverError(w, r, err)
		return
	}
	c.Graph.Nodes = app.runner.images.ResolveURLs(r.Context(), c.Graph.Nodes)
	app.writeJSON(w, r, http.StatusOK, c)
}

// serveImage serves the evidence images kept in memory.
func (app *application) serveImage(w http.ResponseWriter, r *http.Request) {
	data, ok := app.images.Get(r.PathValue("key"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}
