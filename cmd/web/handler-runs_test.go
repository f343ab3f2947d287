package main

import (
	"github.com/myrjola/casegen/internal/generation"
	"github.com/myrjola/casegen/internal/models"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"testing"
)

func TestRuns_simulatedLifecycle(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)

	tests := []struct {
		name      string
		body      string
		wantNodes int
	}{
		{
			name: "multiphase",
			body: `{"config": {"mode": "multiphase", "industry": "finance", "topic": "embezzlement",
				"difficulty": "medium", "suspectCount": 3}}`,
			// start, 3 suspects with 3 evidence and 1 question each, identify and epilogue.
			wantNodes: 1 + 3*(1+3+3) + 2,
		},
		{
			name:      "freeform",
			body:      `{"config": {"mode": "freeform", "story": "A museum heist."}, "credential": "simulation"}`,
			wantNodes: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var started startRunResponse
			server.PostJSON(t, "/api/runs", tt.body, http.StatusAccepted, &started)
			require.NotEmpty(t, started.RunID)

			events := server.Events(t, started.RunID)
			require.NotEmpty(t, events)
			last := events[len(events)-1]
			require.Equal(t, generation.PhaseDone, last.Phase)
			require.Equal(t, generation.ProgressDone, last.Percent)
			require.Equal(t, started.RunID, last.CaseID)
			require.Empty(t, last.Error)
			for i := 1; i < len(events); i++ {
				require.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent)
			}

			var record models.RunRecord
			server.GetJSON(t, started.Status, http.StatusOK, &record)
			require.Equal(t, string(generation.PhaseDone), record.Phase)
			require.Equal(t, generation.ProgressDone, record.Percent)

			var stored models.StoredCase
			server.GetJSON(t, "/api/cases/"+last.CaseID, http.StatusOK, &stored)
			require.NotEmpty(t, stored.Title)
			require.NotEmpty(t, stored.Graph.Nodes)
			if tt.wantNodes > 0 {
				require.Len(t, stored.Graph.Nodes, tt.wantNodes)
			}

			var summaries []models.CaseSummary
			server.GetJSON(t, "/api/cases", http.StatusOK, &summaries)
			ids := make([]string, 0, len(summaries))
			for _, s := range summaries {
				ids = append(ids, s.ID)
			}
			require.Contains(t, ids, started.RunID)
		})
	}
}

func TestRuns_rejected(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)

	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{
			name:      "invalid config",
			body:      `{"config": {"mode": "multiphase", "industry": "finance", "suspectCount": 1}}`,
			wantError: "Please check the case settings: topic is required; suspectCount must be between 2 and 8.",
		},
		{
			name:      "not json",
			body:      `mode=freeform`,
			wantError: "Please check the case settings: the request is not valid JSON.",
		},
		{
			name:      "unknown provider",
			body:      `{"config": {"mode": "freeform", "story": "x"}, "provider": "hal9000"}`,
			wantError: `Please check the case settings: unknown provider "hal9000".`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorResponse
			server.PostJSON(t, "/api/runs", tt.body, http.StatusBadRequest, &body)
			require.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestRuns_notFound(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)

	for _, path := range []string{"/api/runs/missing", "/api/runs/missing/events", "/api/cases/missing"} {
		t.Run(path, func(t *testing.T) {
			var body errorResponse
			server.GetJSON(t, path, http.StatusNotFound, &body)
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestCases_listLimit(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)

	var body errorResponse
	server.GetJSON(t, "/api/cases?limit=0", http.StatusBadRequest, &body)
	require.NotEmpty(t, body.Error)

	var summaries []models.CaseSummary
	server.GetJSON(t, "/api/cases?limit=5", http.StatusOK, &summaries)
	require.Empty(t, summaries)
}
