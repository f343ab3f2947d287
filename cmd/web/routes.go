package main

import (
	"github.com/justinas/alice"
	"net/http"
	"time"
)

func (app *application) routes(defaultTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	api := alice.New(jsonHeaders, func(h http.Handler) http.Handler {
		return timeoutHandler(h, defaultTimeout)
	})
	stream := alice.New(app.streamDeadline)

	mux.Handle("GET /api/healthy", api.ThenFunc(app.healthy))
	mux.Handle("POST /api/runs", api.ThenFunc(app.startRun))
	mux.Handle("GET /api/runs/{id}", api.ThenFunc(app.getRun))
	mux.Handle("GET /api/runs/{id}/events", stream.ThenFunc(app.runEvents))
	mux.Handle("GET /api/cases", api.ThenFunc(app.listCases))
	mux.Handle("GET /api/cases/{id}", api.ThenFunc(app.getCase))
	if app.images != nil {
		mux.Handle("GET /images/{key...}", alice.New(cacheForeverHeaders).ThenFunc(app.serveImage))
	}

	common := alice.New(app.recoverPanic, app.requestContext, app.logRequest, secureHeaders)
	return common.Then(mux)
}
