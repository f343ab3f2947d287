package main

import (
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"testing"
)

func TestHealthy(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)

	var body healthResponse
	server.GetJSON(t, "/api/healthy", http.StatusOK, &body)
	require.Equal(t, "ok", body.Status)
	require.Zero(t, body.RunningRuns)
}
