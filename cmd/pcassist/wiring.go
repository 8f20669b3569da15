package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/pcassist/internal/api"
	"github.com/AaronLay10/pcassist/internal/broadcast"
	"github.com/AaronLay10/pcassist/internal/config"
	"github.com/AaronLay10/pcassist/internal/detector"
	"github.com/AaronLay10/pcassist/internal/events"
	"github.com/AaronLay10/pcassist/internal/geometry"
	"github.com/AaronLay10/pcassist/internal/handoff"
	"github.com/AaronLay10/pcassist/internal/overlay"
	"github.com/AaronLay10/pcassist/internal/piece"
	"github.com/AaronLay10/pcassist/internal/pipeline"
	"github.com/AaronLay10/pcassist/internal/solver"
	"github.com/AaronLay10/pcassist/internal/storage/postgres"
	"github.com/AaronLay10/pcassist/internal/storage/sqlite"
	"github.com/AaronLay10/pcassist/internal/version"
)

// store is an event store that also records runs and serves history.
type store interface {
	events.Store
	api.EventHistory
	StartSession(id, command, version string, at time.Time) error
	EndSession(id string, at time.Time, runErr error) error
	Close() error
}

// session is one run: its id and the event store, if any.
type session struct {
	id    string
	store store
}

// openStore connects Postgres when enabled and falls back to the SQLite
// file when one is configured. No store at all is not an error.
func openStore(cfg *config.Config) store {
	if cfg.Postgres.Enabled {
		dsn, err := cfg.PostgresDSN()
		var pg *postgres.Client
		if err == nil {
			pg, err = postgres.New(dsn, cfg.InstanceID())
		}
		api.SetPostgresState(err == nil, true)
		if err == nil {
			return pg
		}
		log.Printf("postgres unavailable: %v", err)
	} else {
		api.SetPostgresState(false, false)
	}

	if cfg.SQLite.Path != "" {
		db, err := sqlite.Open(cfg.SQLite.Path, cfg.InstanceID())
		if err == nil {
			return db
		}
		log.Printf("sqlite unavailable: %v", err)
	}
	return nil
}

// startSession tags events with a fresh run id and opens the event store.
// A store that cannot be reached is logged and skipped; events still go to
// stdout and the ring buffer.
func startSession(cfg *config.Config, command string) *session {
	s := &session{id: uuid.NewString()}
	events.SetSessionID(s.id)

	if st := openStore(cfg); st != nil {
		if err := st.StartSession(s.id, command, version.Version, time.Now()); err != nil {
			log.Printf("event store unusable, events will not be persisted: %v", err)
			st.Close()
			api.SetPostgresState(false, cfg.Postgres.Enabled)
		} else {
			s.store = st
			events.SetStore(st)
		}
	}

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "pcassist starting", map[string]interface{}{
		"command":  command,
		"instance": cfg.InstanceID(),
		"session":  s.id,
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})
	return s
}

// end emits the shutdown event and releases the store.
func (s *session) end(err error) {
	fields := map[string]interface{}{"session": s.id}
	if err != nil {
		fields["error"] = err.Error()
		events.Emit("error", "system.error", "run failed", fields)
	}
	events.Emit("info", "system.shutdown", "pcassist stopping", fields)

	if s.store != nil {
		// Waits for queued events so they land before the session closes.
		events.SetStore(nil)
		if serr := s.store.EndSession(s.id, time.Now(), err); serr != nil {
			log.Printf("event store: could not close session %s: %v", s.id, serr)
		}
		s.store.Close()
	}
}

// spawnRows converts the per-letter config map into kernel offsets.
func spawnRows(rows map[string]int) ([piece.Count]int, error) {
	var out [piece.Count]int
	for letter, n := range rows {
		t, err := piece.FromLetter(letter)
		if err != nil {
			return out, fmt.Errorf("geometry.spawn_rows: %w", err)
		}
		out[t] = n
	}
	return out, nil
}

// newOracle builds the built-in search oracle from config.
func newOracle(cfg *config.Config) *solver.Backtrack {
	oracle := solver.NewBacktrack(cfg.Solver.NodeLimit)
	if cfg.Solver.MaxHeight > 0 {
		oracle.MaxHeight = cfg.Solver.MaxHeight
	}
	return oracle
}

// pipelineConfig maps config onto the pipeline. Reader and sinks come from
// the command.
func pipelineConfig(cfg *config.Config, r detector.Reader, sinks ...overlay.Sink) (pipeline.Config, error) {
	placeability, err := solver.ParsePlaceability(cfg.Placeability())
	if err != nil {
		return pipeline.Config{}, err
	}
	mode, err := broadcast.ParseMode(cfg.Mode())
	if err != nil {
		return pipeline.Config{}, err
	}
	rows, err := spawnRows(cfg.Geometry.SpawnRows)
	if err != nil {
		return pipeline.Config{}, err
	}

	return pipeline.Config{
		Reader:   r,
		Detector: detector.Options{BoundaryAfter: cfg.Detector.BoundaryAfter},
		Oracle:   newOracle(cfg),
		Kernel:   geometry.Kernel{SpawnRows: rows},
		Broadcast: broadcast.Options{
			Solver: solver.Options{
				AllowHold:        cfg.AllowHold(),
				AllowInitialSwap: cfg.Solver.AllowInitialSwap,
				Placeability:     placeability,
			},
			Mode:          mode,
			Timeout:       cfg.SearchTimeout(),
			MaxCandidates: cfg.Solver.MaxCandidates,
		},
		Handoff:      handoff.Policy(cfg.HandoffPolicy()),
		PollInterval: cfg.Detector.PollInterval,
		FPS:          cfg.FPS(),
		Sinks:        sinks,
	}, nil
}

// jsonSink writes every overlay message as one JSON line.
type jsonSink struct {
	w io.Writer
}

func (s jsonSink) Name() string { return "stdout" }

func (s jsonSink) Show(msg broadcast.Message) error {
	b, err := json.Marshal(struct {
		Kind string `json:"kind"`
		broadcast.Message
	}{"overlay", msg})
	if err != nil {
		return err
	}
	_, err = s.w.Write(append(b, '\n'))
	return err
}

// mqttStatePoll mirrors the broker connection into readiness until done.
func mqttStatePoll(connected func() bool, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	api.SetMQTTState(connected(), true)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			api.SetMQTTState(connected(), true)
		}
	}
}
