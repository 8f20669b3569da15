package mqtt

import (
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/detector"
	"github.com/AaronLay10/pcassist/internal/piece"
)

// Status values the agent publishes on its status topic. The agent sets
// StatusExited as its last will, so a crash reads the same as a clean exit.
const (
	StatusAlive  = "alive"
	StatusExited = "exited"
)

// Topics under the configured prefix.
const (
	SampleTopic  = "sample"
	StatusTopic  = "status"
	OverlayTopic = "overlay"

	// PresenceTopic is where pcassist announces itself online or offline.
	PresenceTopic = "presence"
)

// Topic joins a prefix and a topic name.
func Topic(prefix, name string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// SampleSource is a Process Reader fed by a remote agent over MQTT. Each
// read returns the most recent sample. Liveness comes from the agent's
// status topic and from the age of the last sample.
type SampleSource struct {
	mu        sync.RWMutex
	latest    *board.RawSample
	badSample error
	lastSeen  time.Time
	status    string

	heartbeat time.Duration
	tolerance float64 // multiplier for heartbeat interval (e.g., 2.0 = 2x heartbeat)
	now       func() time.Time
}

// NewSampleSource creates a source. heartbeat is how often the agent
// samples at worst; zero disables the staleness check. tolerance is the
// multiplier for heartbeat before the agent is considered gone.
func NewSampleSource(heartbeat time.Duration, tolerance float64) *SampleSource {
	if tolerance <= 1.0 {
		tolerance = 2.0 // default: miss 1 heartbeat
	}
	return &SampleSource{
		heartbeat: heartbeat,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Subscribe attaches the source to the sample and status topics.
func (s *SampleSource) Subscribe(t Transport, prefix string) error {
	if err := t.Subscribe(Topic(prefix, SampleTopic), func(_ paho.Client, msg paho.Message) {
		s.HandleSample(msg.Payload())
	}); err != nil {
		return err
	}
	return t.Subscribe(Topic(prefix, StatusTopic), func(_ paho.Client, msg paho.Message) {
		s.HandleStatus(msg.Payload())
	})
}

// HandleSample records a sample message. A malformed sample replaces the
// previous one: reads fail until the next good sample arrives.
func (s *SampleSource) HandleSample(data []byte) {
	sample, err := ParseSample(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	if err != nil {
		s.badSample = err
		return
	}
	s.badSample = nil
	s.latest = sample
}

// HandleStatus records the agent's status.
func (s *SampleSource) HandleStatus(data []byte) {
	status := strings.ToLower(strings.TrimSpace(string(data)))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if status == StatusAlive {
		s.lastSeen = s.now()
	}
}

// Alive reports false once the agent said it exited or, after the first
// message, when nothing arrived for heartbeat × tolerance.
func (s *SampleSource) Alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status == StatusExited {
		return false
	}
	if s.heartbeat <= 0 || s.lastSeen.IsZero() {
		return true
	}
	timeout := time.Duration(float64(s.heartbeat) * s.tolerance)
	return s.now().Sub(s.lastSeen) <= timeout
}

func (s *SampleSource) sample() (*board.RawSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.badSample != nil {
		return nil, s.badSample
	}
	if s.latest == nil {
		return nil, detector.ErrUnavailable
	}
	return s.latest, nil
}

func (s *SampleSource) CurrentPiece() (board.Piece, error) {
	sample, err := s.sample()
	if err != nil {
		return board.None, err
	}
	return sample.Current, nil
}

func (s *SampleSource) Columns() (board.Columns, error) {
	sample, err := s.sample()
	if err != nil {
		return board.Columns{}, err
	}
	return sample.Columns, nil
}

func (s *SampleSource) PreviewQueue() ([]piece.Type, error) {
	sample, err := s.sample()
	if err != nil {
		return nil, err
	}
	return append([]piece.Type(nil), sample.Preview...), nil
}

func (s *SampleSource) HeldPiece() (board.Piece, error) {
	sample, err := s.sample()
	if err != nil {
		return board.None, err
	}
	return sample.Held, nil
}
