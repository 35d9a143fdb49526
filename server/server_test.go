package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harkhq/hark/server"
	"github.com/harkhq/hark/session"
)

type collector struct {
	mu    sync.Mutex
	texts []string
}

func (c *collector) sink(userID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
}

func (c *collector) wait(t *testing.T) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.texts) > 0 {
			got := append([]string(nil), c.texts...)
			c.mu.Unlock()
			return got
		}
		c.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("No utterance reached the sink")
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *collector) {
	t.Helper()
	c := &collector{}
	mgr := session.NewManager(session.Config{
		PauseThreshold: time.Hour, // tests finalize explicitly
		DefaultUserID:  "u",
	}, c.sink)
	t.Cleanup(mgr.Close)

	srv := server.New(server.Config{Addr: ":0"}, mgr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, c
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
}

func TestWebhookBuffersAndFinalizeEmits(t *testing.T) {
	ts, c := newTestServer(t)

	resp := postJSON(t, ts.URL+"/webhook", server.Frame{SessionID: "s1", Text: "remember the"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Webhook status = %d, want 200", resp.StatusCode)
	}
	var ack map[string]string
	json.NewDecoder(resp.Body).Decode(&ack)
	if ack["status"] != "buffered" || ack["session_id"] != "s1" {
		t.Errorf("Ack = %v", ack)
	}

	postJSON(t, ts.URL+"/webhook", server.Frame{SessionID: "s1", Text: "dentist appointment"})
	postJSON(t, ts.URL+"/finalize", map[string]string{"session_id": "s1"})

	got := c.wait(t)
	if got[0] != "remember the dentist appointment" {
		t.Errorf("Utterance = %q", got[0])
	}
}

func TestWebhookRejectsMissingSessionID(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/webhook", server.Frame{Text: "no session"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.StatusCode)
	}
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.StatusCode)
	}
}

func TestWebSocketStreamIngestsFrames(t *testing.T) {
	ts, c := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.Close()

	frames := []server.Frame{
		{SessionID: "ws1", Text: "note to self"},
		{SessionID: "ws1", Text: "check the focaccia recipe", Final: true},
	}
	for _, frame := range frames {
		if err := conn.WriteJSON(frame); err != nil {
			t.Fatalf("WriteJSON failed: %v", err)
		}
		var ack map[string]string
		if err := conn.ReadJSON(&ack); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if ack["status"] != "buffered" {
			t.Errorf("Ack = %v", ack)
		}
	}

	got := c.wait(t)
	if got[0] != "note to self check the focaccia recipe" {
		t.Errorf("Utterance = %q", got[0])
	}
}

func TestWebSocketReportsBadFrames(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(server.Frame{Text: "missing session"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var reply map[string]string
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if reply["error"] == "" {
		t.Errorf("Expected an error reply, got %v", reply)
	}
}
