package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lazypower/horizon/internal/config"
	"github.com/lazypower/horizon/internal/horizon"
	"github.com/lazypower/horizon/internal/server"
)

func testClient(t *testing.T, cfg config.EngineConfig) *Client {
	t.Helper()
	sc, err := horizon.New(cfg)
	if err != nil {
		t.Fatalf("horizon.New: %v", err)
	}
	ts := httptest.NewServer(server.New(sc, nil, "test"))
	t.Cleanup(ts.Close)
	return New(ts.URL + "/")
}

const feed = `{"source":"s1","content":"alpha","tag":"calm","resonance":0.5,"timestamp":"2020-01-01T00:00:00Z"}
{"source":"s1","content":"alpha","tag":"calm","resonance":0.5,"timestamp":"2020-01-01T00:00:00Z"}
{"source":"s1","content":"beta","tag":"calm","resonance":0.5,"timestamp":"2020-01-01T00:01:00Z"}
oops`

func TestPushAndScan(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.ScanIntervalSeconds = 0
	c := testClient(t, cfg)
	ctx := context.Background()

	if !c.Healthy(ctx) {
		t.Fatal("server not healthy")
	}

	res, err := c.PushEvents(ctx, strings.NewReader(feed))
	if err != nil {
		t.Fatalf("PushEvents: %v", err)
	}
	if res.Accepted != 2 || res.Duplicates != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 2 accepted, 1 duplicate, 1 skipped", res)
	}

	scan, err := c.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scan.TooSoon || scan.Report == nil {
		t.Fatalf("scan = %+v, want a report", scan)
	}
	if scan.Report.EventsProcessed != 2 {
		t.Errorf("EventsProcessed = %d, want 2", scan.Report.EventsProcessed)
	}
}

func TestScanTooSoon(t *testing.T) {
	c := testClient(t, config.DefaultEngine())
	ctx := context.Background()

	if _, err := c.Scan(ctx); err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	scan, err := c.Scan(ctx)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if !scan.TooSoon || scan.Report != nil {
		t.Errorf("scan = %+v, want too soon", scan)
	}
	if scan.NextScan.IsZero() {
		t.Error("NextScan not set")
	}
}

func TestUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if c.Healthy(context.Background()) {
		t.Error("unreachable server reported healthy")
	}
	if _, err := c.PushEvents(context.Background(), strings.NewReader(feed)); err == nil {
		t.Error("expected error from unreachable server")
	}
}
