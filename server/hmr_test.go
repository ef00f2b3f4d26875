package server

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHMR(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) HMRMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg HMRMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func waitForClients(t *testing.T, b *hmrBroadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for b.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d clients joined", b.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastFanOut(t *testing.T) {
	config := writeProject(t, map[string]string{})
	s := newTestServer(t, config)
	ts := httptest.NewServer(s)
	defer ts.Close()

	c1 := dialHMR(t, ts)
	c2 := dialHMR(t, ts)
	waitForClients(t, s.hmr, 2)

	sent := []HMRMessage{
		{Type: "update", Path: "/src/App.tsx"},
		{Type: "update", Path: "/src/App.tsx"},
		{Type: "reload"},
	}
	for _, msg := range sent {
		s.hmr.Broadcast(msg)
	}

	for _, conn := range []*websocket.Conn{c1, c2} {
		for i, want := range sent {
			got := readMessage(t, conn)
			if got.Type != want.Type || got.Path != want.Path {
				t.Fatalf("message %d: got %+v, want %+v", i, got, want)
			}
		}
	}
}

func TestBroadcastSurvivesClosedClient(t *testing.T) {
	config := writeProject(t, map[string]string{})
	s := newTestServer(t, config)
	ts := httptest.NewServer(s)
	defer ts.Close()

	c1 := dialHMR(t, ts)
	c2 := dialHMR(t, ts)
	waitForClients(t, s.hmr, 2)

	c1.Close()
	s.hmr.Broadcast(HMRMessage{Type: "update", Path: "/src/a.ts"})

	got := readMessage(t, c2)
	if got.Type != "update" || got.Path != "/src/a.ts" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestSourceChangeBroadcast(t *testing.T) {
	config := writeProject(t, map[string]string{
		"src/App.tsx": "export default 1;\n",
	})
	s := newTestServer(t, config)
	ts := httptest.NewServer(s)
	defer ts.Close()

	conn := dialHMR(t, ts)
	waitForClients(t, s.hmr, 1)

	filename, _ := s.pipeline.resolveSourcePath("/src/App.tsx")
	if _, err := s.pipeline.Load(filename); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filename, []byte("export default 2;\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s.handleSourceChange(filename)

	got := readMessage(t, conn)
	if got.Type != "update" || got.Path != "/src/App.tsx" {
		t.Fatalf("unexpected message: %+v", got)
	}

	// the transform record was invalidated before the broadcast, so a fetch
	// after the update message sees the new content
	body, err := s.pipeline.Load(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "2") {
		t.Fatalf("stale transform after change:\n%s", body)
	}
}

func TestHotUpdateHookOrder(t *testing.T) {
	var order []string
	config := writeProject(t, map[string]string{})
	config.Plugins = []Plugin{
		{
			Name: "first",
			OnHotUpdate: func(file string, broadcast func(HMRMessage)) {
				order = append(order, "first")
			},
		},
		{
			Name: "panics",
			OnHotUpdate: func(file string, broadcast func(HMRMessage)) {
				order = append(order, "panics")
				panic("boom")
			},
		},
		{
			Name: "last",
			OnHotUpdate: func(file string, broadcast func(HMRMessage)) {
				order = append(order, "last")
				broadcast(HMRMessage{Type: "reload"})
			},
		},
	}
	s := newTestServer(t, config)
	ts := httptest.NewServer(s)
	defer ts.Close()

	conn := dialHMR(t, ts)
	waitForClients(t, s.hmr, 1)

	s.handleSourceChange(config.EntryFile)

	if strings.Join(order, ",") != "first,panics,last" {
		t.Fatalf("hook chain aborted: %v", order)
	}
	// the plugin's own broadcast arrives before the update message
	if got := readMessage(t, conn); got.Type != "reload" {
		t.Fatalf("unexpected first message: %+v", got)
	}
	if got := readMessage(t, conn); got.Type != "update" {
		t.Fatalf("unexpected second message: %+v", got)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	config := writeProject(t, map[string]string{})
	s := newTestServer(t, config)
	ts := httptest.NewServer(s)
	defer ts.Close()

	conn := dialHMR(t, ts)
	waitForClients(t, s.hmr, 1)

	s.hmr.Close()

	// the server-side close reaches the client as a read error
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}
	if s.hmr.ClientCount() != 0 {
		t.Fatalf("clients remained after close: %d", s.hmr.ClientCount())
	}
}
