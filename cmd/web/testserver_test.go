package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
)

// waitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func waitForReady(ctx context.Context, endpoint string) error {
	timeout := 1 * time.Second
	client := http.Client{}
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(
			ctx,
			http.MethodGet,
			endpoint,
			nil,
		); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = client.Do(req); err == nil {
			if resp.StatusCode == http.StatusOK {
				if err = resp.Body.Close(); err != nil {
					return errors.Wrap(err, "close response body")
				}
				return nil
			}
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(250 * time.Millisecond)
		}
	}
}

func testLookupEnv(key string) (string, bool) {
	switch key {
	case "CASEGEN_ADDR":
		return "localhost:0", true
	case "CASEGEN_SQLITE_URL":
		return ":memory:", true
	case "CASEGEN_CREDENTIAL":
		return "simulation", true
	default:
		return "", false
	}
}

type testServer struct {
	url    string
	client http.Client
}

// startTestServer starts the test server, waits for it to be ready, and return the server URL for testing.
func startTestServer(t *testing.T, w io.Writer, lookupEnv func(string) (string, bool)) testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	// We need to grab the dynamically allocated port from the log output.
	addrCh := make(chan string, 1)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "Addr" {
				addrCh <- a.Value.String()
			}
			return a
		},
	})))

	// Start the server and wait for it to be ready.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := run(ctx, logger, lookupEnv); err != nil {
			cancel()
			assert.NoError(t, err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-ctx.Done():
		t.Fatal("server failed to start")
		return testServer{} //nolint:exhaustruct // This is unreachable.
	case addr := <-addrCh:
		serverURL := fmt.Sprintf("http://%s", addr)
		if err := waitForReady(ctx, fmt.Sprintf("%s/api/healthy", serverURL)); err != nil {
			require.NoError(t, err)
		}
		return testServer{
			url:    serverURL,
			client: http.Client{Timeout: 10 * time.Second}, //nolint:mnd // generous for slow CI.
		}
	}
}

// Get fetches a URL and returns the response.
func (s *testServer) Get(t *testing.T, urlPath string) *http.Response {
	t.Helper()
	resp, err := s.client.Get(s.url + urlPath)
	require.NoError(t, err)
	return resp
}

// GetJSON fetches a URL, checks the status and decodes the JSON body into v.
func (s *testServer) GetJSON(t *testing.T, urlPath string, wantStatus int, v any) {
	t.Helper()
	resp := s.Get(t, urlPath)
	decodeResponse(t, resp, wantStatus, v)
}

// PostJSON posts body to a URL, checks the status and decodes the JSON body into v.
func (s *testServer) PostJSON(t *testing.T, urlPath string, body string, wantStatus int, v any) {
	t.Helper()
	resp, err := s.client.Post(s.url+urlPath, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	decodeResponse(t, resp, wantStatus, v)
}

// Events reads the server-sent events of a run until the stream ends.
func (s *testServer) Events(t *testing.T, runID string) []runEvent {
	t.Helper()
	resp := s.Get(t, "/api/runs/"+runID+"/events")
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []runEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var event runEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return events
}

func decodeResponse(t *testing.T, resp *http.Response, wantStatus int, v any) {
	t.Helper()
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", body)
	if v != nil {
		require.NoError(t, json.Unmarshal(body, v), "body: %s", body)
	}
}
