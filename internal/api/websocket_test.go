package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/pcassist/internal/events"
)

// eventually fails the test if cond is still false after d.
func eventually(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	for end := time.Now().Add(d); time.Now().Before(end); time.Sleep(5 * time.Millisecond) {
		if cond() {
			return
		}
	}
	t.Errorf("gave up waiting for %s", what)
}

// wsServer serves wsEventsHandler with a clean event log.
type wsServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	events.Clear()
	events.CloseAllSubscribers()
	srv := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	t.Cleanup(srv.Close)
	return &wsServer{t: t, srv: srv}
}

func (s *wsServer) dial(query string) *websocket.Conn {
	s.t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		s.t.Fatalf("dial %s: %v", url, err)
	}
	s.t.Cleanup(func() { conn.Close() })
	return conn
}

// dialSubscribed dials and waits until the handler has subscribed, so
// events emitted afterwards are streamed rather than missed.
func (s *wsServer) dialSubscribed(query string) *websocket.Conn {
	s.t.Helper()
	before := events.SubscriberCount()
	conn := s.dial(query)
	eventually(s.t, 2*time.Second, "subscription", func() bool {
		return events.SubscriberCount() > before
	})
	return conn
}

func next(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e events.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return e
}

func TestWebSocketBacklog(t *testing.T) {
	tests := []struct {
		query    string
		wantSeqs []int64
	}{
		{"", []int64{1, 2, 3, 4, 5}},
		{"?recent=2", []int64{4, 5}},
		{"?recent=bad", []int64{1, 2, 3, 4, 5}},
		{"?since=3", []int64{4, 5}},
		{"?since=3&recent=1", []int64{4, 5}},
	}
	for _, tt := range tests {
		t.Run("query="+tt.query, func(t *testing.T) {
			s := newWSServer(t)
			for i := 0; i < 5; i++ {
				events.Emit("info", "detector.snapshot", "", map[string]interface{}{"i": i})
			}

			conn := s.dial(tt.query)
			for _, want := range tt.wantSeqs {
				e := next(t, conn)
				if e.Seq != want || e.Name != "detector.snapshot" {
					t.Errorf("expected seq %d, got %d (%s)", want, e.Seq, e.Name)
				}
			}
		})
	}
}

func TestWebSocketNoBacklog(t *testing.T) {
	s := newWSServer(t)
	events.Emit("info", "detector.snapshot", "", nil)

	conn := s.dialSubscribed("?recent=0")
	events.Emit("info", "bag.reset", "", nil)

	if e := next(t, conn); e.Name != "bag.reset" || e.Seq != 2 {
		t.Errorf("expected only the live event, got %+v", e)
	}
}

func TestWebSocketResumeSkipsBacklogDuplicates(t *testing.T) {
	s := newWSServer(t)
	for i := 0; i < 3; i++ {
		events.Emit("info", "detector.snapshot", "", nil)
	}

	conn := s.dialSubscribed("?since=1")
	events.Emit("info", "overlay.cleared", "", nil)

	for _, want := range []int64{2, 3, 4} {
		if e := next(t, conn); e.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, e.Seq)
		}
	}
}

func TestWebSocketStreamsToEveryClient(t *testing.T) {
	s := newWSServer(t)
	a := s.dialSubscribed("")
	b := s.dialSubscribed("")

	events.Emit("info", "overlay.broadcast", "", map[string]interface{}{"cells": 4})
	events.Emit("info", "overlay.cleared", "", nil)

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		first, second := next(t, conn), next(t, conn)
		if first.Name != "overlay.broadcast" || first.Fields["cells"] != float64(4) {
			t.Errorf("client %s: unexpected first event %+v", name, first)
		}
		if second.Name != "overlay.cleared" || second.Seq != first.Seq+1 {
			t.Errorf("client %s: unexpected second event %+v", name, second)
		}
	}
}

func TestWebSocketClientGoneUnsubscribes(t *testing.T) {
	s := newWSServer(t)
	conn := s.dialSubscribed("")

	conn.Close()
	eventually(t, 5*time.Second, "unsubscribe after close", func() bool {
		return events.SubscriberCount() == 0
	})
}

func TestWebSocketEndsOnShutdown(t *testing.T) {
	s := newWSServer(t)
	conn := s.dialSubscribed("")

	events.CloseAllSubscribers()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the server to close the connection")
	}
}

func TestWebSocketEventJSON(t *testing.T) {
	s := newWSServer(t)
	conn := s.dialSubscribed("")
	events.Emit("warning", "solver.unsolvable", "no clear", nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"seq", "ts", "level", "event", "msg"} {
		if _, ok := m[key]; !ok {
			t.Errorf("event JSON missing %q: %s", key, raw)
		}
	}
}
