package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/pcassist/internal/metrics"
)

var buffer = NewRingBuffer(256)

// Store persists events. *postgres.Client satisfies it.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

// storeQueueSize bounds the events waiting for the store writer. Events
// beyond it are dropped and counted.
const storeQueueSize = 1024

var (
	writer        *storeWriter
	storeMu       sync.RWMutex
	sessionID     string
	output        io.Writer = os.Stdout
	outputMu      sync.Mutex
	minOutputRank = levelRank["info"]
)

var levelRank = map[string]int{
	"debug":   0,
	"info":    1,
	"warning": 2,
	"error":   3,
}

// SetStore sets the backing store for event persistence and starts its
// writer. Pass nil to disable. Replacing or clearing a store waits for the
// previous writer to drain its queue.
func SetStore(s Store) {
	var w *storeWriter
	if s != nil {
		w = newStoreWriter(s)
	}
	storeMu.Lock()
	prev := writer
	writer = w
	storeMu.Unlock()

	if prev != nil {
		prev.stop()
	}
}

// record is an event queued for the store.
type record struct {
	ts      time.Time
	level   string
	name    string
	msg     string
	fields  map[string]interface{}
	session string
}

// storeWriter appends queued events to a Store on its own goroutine, so
// Emit never waits on the database.
type storeWriter struct {
	store  Store
	queue  chan record
	done   chan struct{}
	failed bool
}

func newStoreWriter(s Store) *storeWriter {
	w := &storeWriter{
		store: s,
		queue: make(chan record, storeQueueSize),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *storeWriter) run() {
	defer close(w.done)
	for r := range w.queue {
		err := w.store.Append(r.ts, r.level, r.name, r.msg, r.fields, r.session)
		if err == nil || w.failed {
			continue
		}
		// Report once to avoid spam. Added straight to the buffer, not
		// through Emit, so a failing store cannot recurse.
		w.failed = true
		buffer.Add(Event{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Level:     "error",
			Name:      "system.error",
			Message:   "event store append failed",
			Fields: map[string]interface{}{
				"error": err.Error(),
			},
		})
	}
}

// enqueue hands r to the writer without blocking. Called with storeMu held
// for reading, so the queue cannot be closed underneath it.
func (w *storeWriter) enqueue(r record) {
	select {
	case w.queue <- r:
	default:
		metrics.EventStoreDrops.Inc()
	}
}

// stop closes the queue and waits for the writer to finish it.
func (w *storeWriter) stop() {
	close(w.queue)
	<-w.done
}

// SetSessionID tags every persisted event with the given run session.
func SetSessionID(id string) {
	storeMu.Lock()
	sessionID = id
	storeMu.Unlock()
}

// SessionID returns the current run session.
func SessionID() string {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return sessionID
}

// SetOutput sets where event lines are written and the minimum level that
// is written. Pass io.Discard to silence output.
func SetOutput(w io.Writer, minLevel string) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
	if rank, ok := levelRank[minLevel]; ok {
		minOutputRank = rank
	}
}

// Event is one structured log entry. Seq is assigned by the ring buffer.
type Event struct {
	Seq       int64                  `json:"seq"`
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	e = buffer.Add(e)
	broadcast(e)

	if written(level) {
		storeMu.RLock()
		if writer != nil {
			writer.enqueue(record{ts, level, name, msg, fields, sessionID})
		}
		storeMu.RUnlock()
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	write(level, b)
	return b, nil
}

// written reports whether events at level pass the output threshold. The
// same threshold decides what is persisted.
func written(level string) bool {
	outputMu.Lock()
	defer outputMu.Unlock()
	return levelRank[level] >= minOutputRank
}

func write(level string, line []byte) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if output == nil || levelRank[level] < minOutputRank {
		return
	}
	_, _ = output.Write(append(line, '\n'))
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// Since returns the buffered events after sequence number seq.
func Since(seq int64) []Event {
	return buffer.Since(seq)
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
