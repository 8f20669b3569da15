package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/pcassist/internal/events"
	"github.com/AaronLay10/pcassist/internal/metrics"
)

const (
	// Backlog sent to a new client unless ?recent= or ?since= says otherwise.
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The overlay UI may be served from another origin on the same host.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn serializes writes to one websocket peer.
type wsConn struct {
	*websocket.Conn
}

func (c wsConn) writeEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		// Unencodable fields are skipped, not fatal.
		return nil
	}
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.TextMessage, data)
}

func (c wsConn) ping() error {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.PingMessage, nil)
}

// readUntilClosed consumes control frames and returns when the peer goes
// away or stops answering pings.
func (c wsConn) readUntilClosed(done chan<- struct{}) {
	defer close(done)
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// backlog picks what a new client is sent before live events: everything
// after ?since=SEQ when given, else the last ?recent=N (default 50).
func backlog(r *http.Request) []events.Event {
	if r.URL.Query().Has("since") {
		if seq, err := queryInt(r, "since"); err == nil {
			return events.Since(int64(seq))
		}
	}
	recent := recentEventsCount
	if r.URL.Query().Has("recent") {
		if n, err := queryInt(r, "recent"); err == nil {
			recent = n
		}
	}
	if recent == 0 {
		return nil
	}
	return events.RecentEvents(recent)
}

// wsEventsHandler streams the event log: the backlog first, then live
// events in sequence order.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	conn := wsConn{raw}
	defer conn.Close()
	metrics.WSClients.Inc()
	defer metrics.WSClients.Dec()

	// Subscribed before the backlog is read, so an event emitted in between
	// arrives on both and is skipped by sequence below.
	sub := events.Subscribe()
	defer events.Unsubscribe(sub)

	var sent int64
	for _, e := range backlog(r) {
		if err := conn.writeEvent(e); err != nil {
			log.Printf("ws write backlog failed: %v", err)
			return
		}
		sent = e.Seq
	}

	done := make(chan struct{})
	go conn.readUntilClosed(done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case e, ok := <-sub:
			if !ok {
				// Closed on shutdown.
				return
			}
			if e.Seq <= sent {
				continue
			}
			if err := conn.writeEvent(e); err != nil {
				log.Printf("ws write event failed: %v", err)
				return
			}
			sent = e.Seq

		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
