package e2etest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/generation"
	"github.com/myrjola/casegen/internal/models"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Event is a progress event of a run as streamed by the server.
type Event struct {
	generation.Progress
	Error  string `json:"error,omitempty"`
	CaseID string `json:"caseId,omitempty"`
}

// Client talks to the casegen HTTP API.
type Client struct {
	client *http.Client
	url    string
}

func NewClient(url string) *Client {
	return &Client{
		client: &http.Client{},
		url:    strings.TrimRight(url, "/"),
	}
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = c.client.Do(req); err == nil {
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
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// StartRun starts a generation run of cfg with the given credential and returns the run id.
func (c *Client) StartRun(ctx context.Context, cfg models.GenerationConfig, credential string) (string, error) {
	body, err := json.Marshal(map[string]any{"config": cfg, "credential": credential})
	if err != nil {
		return "", errors.Wrap(err, "marshal run request")
	}
	var started struct {
		RunID string `json:"runId"`
	}
	if err = c.do(ctx, http.MethodPost, "/api/runs", bytes.NewReader(body), http.StatusAccepted, &started); err != nil {
		return "", err
	}
	return started.RunID, nil
}

// Events reads the progress events of a run until the server ends the stream.
func (c *Client) Events(ctx context.Context, runID string) ([]Event, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/runs/"+runID+"/events", nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("unexpected status code", slog.Int("status", resp.StatusCode))
	}

	var events []Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var event Event
		if err = json.Unmarshal([]byte(data), &event); err != nil {
			return events, errors.Wrap(err, "unmarshal event", slog.String("data", data))
		}
		events = append(events, event)
	}
	if err = scanner.Err(); err != nil {
		return events, errors.Wrap(err, "read events")
	}
	return events, nil
}

// Case fetches a finished case.
func (c *Client) Case(ctx context.Context, id string) (models.StoredCase, error) {
	var stored models.StoredCase
	if err := c.do(ctx, http.MethodGet, "/api/cases/"+id, nil, http.StatusOK, &stored); err != nil {
		return stored, err
	}
	return stored, nil
}

func (c *Client) send(ctx context.Context, method, urlPath string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request", slog.String("path", urlPath))
	}
	return resp, nil
}

// do sends a request, checks the status and decodes the JSON response into v.
func (c *Client) do(ctx context.Context, method, urlPath string, body io.Reader, wantStatus int, v any) error {
	resp, err := c.send(ctx, method, urlPath, body)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response body")
	}
	if resp.StatusCode != wantStatus {
		return errors.New("unexpected status code", slog.Int("status", resp.StatusCode),
			slog.String("path", urlPath), slog.String("body", string(respBody)))
	}
	if err = json.Unmarshal(respBody, v); err != nil {
		return errors.Wrap(err, "unmarshal response", slog.String("path", urlPath))
	}
	return nil
}
