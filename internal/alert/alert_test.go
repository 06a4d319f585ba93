package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lazypower/horizon/internal/horizon"
)

var testWarnings = []horizon.Warning{
	{Type: horizon.WarnQuietDensity, Severity: horizon.SeverityWarning, Message: "quiet density for low_resonance is 0.45", Value: 0.45},
	{Type: horizon.WarnHighAnomalies, Severity: horizon.SeverityCritical, Message: "4 high anomalies active", Value: 4},
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: log.New(&buf, "", 0)}
	if err := sink.Send(context.Background(), testWarnings); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "[warning] quiet_density") || !strings.Contains(out, "[critical] high_anomalies") {
		t.Errorf("log output = %q", out)
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Send(context.Context, []horizon.Warning) error {
	f.calls++
	return errors.New("down")
}

type countingSink struct{ got int }

func (c *countingSink) Send(_ context.Context, ws []horizon.Warning) error {
	c.got += len(ws)
	return nil
}

func TestMultiContinuesPastFailures(t *testing.T) {
	bad := &failingSink{}
	good := &countingSink{}
	err := Multi{bad, good}.Send(context.Background(), testWarnings)
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("err = %v, want joined failure", err)
	}
	if good.got != 2 || bad.calls != 1 {
		t.Errorf("good got %d, bad calls %d", good.got, bad.calls)
	}
	if err := (Multi{good}).Send(context.Background(), testWarnings); err != nil {
		t.Errorf("all-good Multi: %v", err)
	}
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", hub.ClientCount())
	}

	if err := hub.Send(ctx, testWarnings); err != nil {
		t.Fatalf("Send: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "warnings" || len(msg.Payload) != 2 || msg.Payload[1].Type != horizon.WarnHighAnomalies {
		t.Errorf("message = %+v", msg)
	}
}

func TestHubSendAfterStop(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if err := hub.Send(context.Background(), testWarnings); err == nil {
		t.Error("Send on a stopped hub succeeded")
	}
}
