package main

import "net/http"

type healthResponse struct {
	Status      string `json:"status"`
	RunningRuns int64  `json:"runningRuns"`
}

// healthy reports whether the database is reachable and how many generation runs are in flight.
func (app *application) healthy(w http.ResponseWriter, r *http.Request) {
	if err := app.db.Ping(r.Context()); err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok", RunningRuns: app.runner.running()})
}
