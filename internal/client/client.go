// Package client talks to a running horizon server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lazypower/horizon/internal/horizon"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 30 * time.Second
)

// Client talks to the horizon HTTP API.
type Client struct {
	http      *http.Client
	serverURL string
}

// IngestResult is the server's answer to a push.
type IngestResult struct {
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	IDs        []string `json:"ids"`
}

// ScanResult is the server's answer to a scan request. Report is nil when
// the scan was skipped for running too soon.
type ScanResult struct {
	Report   *horizon.Report
	TooSoon  bool
	NextScan time.Time
}

// New creates a client for url. An empty url falls back to HORIZON_URL,
// then to http://127.0.0.1:37778.
func New(url string) *Client {
	if url == "" {
		url = os.Getenv("HORIZON_URL")
	}
	if url == "" {
		url = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(url, "/"),
	}
}

// PushEvents posts newline-delimited JSON events.
func (c *Client) PushEvents(ctx context.Context, ndjson io.Reader) (IngestResult, error) {
	var res IngestResult
	data, err := c.do(ctx, http.MethodPost, "/api/events", "application/x-ndjson", ndjson)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("decode ingest result: %w", err)
	}
	return res, nil
}

// Scan asks the server to scan now.
func (c *Client) Scan(ctx context.Context) (ScanResult, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/scan", "", nil)
	if err != nil {
		return ScanResult{}, err
	}

	var skipped struct {
		TooSoon  bool      `json:"too_soon"`
		NextScan time.Time `json:"next_scan"`
	}
	if err := json.Unmarshal(data, &skipped); err == nil && skipped.TooSoon {
		return ScanResult{TooSoon: true, NextScan: skipped.NextScan}, nil
	}

	var r horizon.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return ScanResult{}, fmt.Errorf("decode report: %w", err)
	}
	return ScanResult{Report: &r}, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.do(ctx, http.MethodGet, "/api/health", "", nil)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	if body == nil {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}
