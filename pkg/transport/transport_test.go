package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/quietloop/scribecore/pkg/bus"
)

func TestHealthRoute(t *testing.T) {
	b := bus.New(8)
	srv := httptest.NewServer(NewServer(b, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestWebsocketForwardsBusEvents(t *testing.T) {
	b := bus.New(8)
	srv := httptest.NewServer(NewServer(b, nil).Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server a moment to register the subscription before
	// publishing, since Subscribe happens inside the handler goroutine.
	time.Sleep(50 * time.Millisecond)

	b.Publish(bus.NewStatus("Ready"))
	rtf := 0.42
	b.Publish(bus.NewTranscript("hello world", "auto", true, &rtf))

	_, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read status frame: %v", err)
	}
	var statusEvt wireEvent
	if err := json.Unmarshal(payload, &statusEvt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if statusEvt.Type != "status" || statusEvt.Text != "Ready" {
		t.Fatalf("unexpected status event: %+v", statusEvt)
	}

	_, payload, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read transcript frame: %v", err)
	}
	var transcriptEvt wireEvent
	if err := json.Unmarshal(payload, &transcriptEvt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if transcriptEvt.Type != "transcript" || !transcriptEvt.IsFinal {
		t.Fatalf("unexpected transcript event: %+v", transcriptEvt)
	}
	if transcriptEvt.RTF == nil || *transcriptEvt.RTF != 0.42 {
		t.Fatalf("expected rtf 0.42, got %+v", transcriptEvt.RTF)
	}
}

func TestWebsocketAnswersPing(t *testing.T) {
	b := bus.New(8)
	srv := httptest.NewServer(NewServer(b, nil).Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	pingCtx, pingCancel := context.WithTimeout(ctx, time.Second)
	defer pingCancel()
	if err := conn.Ping(pingCtx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
