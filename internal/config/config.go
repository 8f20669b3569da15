package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is pcassist.yaml.
type Config struct {
	Version  int `yaml:"version"`
	Instance struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"instance"`
	Detector struct {
		BoundaryAfter time.Duration `yaml:"boundary_after"`
		PollInterval  time.Duration `yaml:"poll_interval"`
	} `yaml:"detector"`
	Handoff string `yaml:"handoff"`
	Solver  struct {
		AllowHold        *bool         `yaml:"allow_hold"`
		AllowInitialSwap bool          `yaml:"allow_initial_swap"`
		Placeability     string        `yaml:"placeability"`
		Mode             string        `yaml:"mode"`
		Timeout          time.Duration `yaml:"timeout"`
		MaxCandidates    int           `yaml:"max_candidates"`
		MaxHeight        int           `yaml:"max_height"`
		NodeLimit        int           `yaml:"node_limit"`
	} `yaml:"solver"`
	Geometry struct {
		// SpawnRows maps a piece letter to its row offset.
		SpawnRows map[string]int `yaml:"spawn_rows"`
	} `yaml:"geometry"`
	Overlay struct {
		FPS int `yaml:"fps"`
	} `yaml:"overlay"`
	MQTT struct {
		URL         string        `yaml:"url"`
		ClientID    string        `yaml:"client_id"`
		TopicPrefix string        `yaml:"topic_prefix"`
		Heartbeat   time.Duration `yaml:"heartbeat"`
		Tolerance   float64       `yaml:"tolerance"`
		Username    string        `yaml:"username"`
		Publish     bool          `yaml:"publish_overlay"`
	} `yaml:"mqtt"`
	API struct {
		Enabled *bool `yaml:"enabled"`
		Port    int   `yaml:"port"`
	} `yaml:"api"`
	Postgres struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Database string `yaml:"database"`
	} `yaml:"postgres"`
	// SQLite is the local event store used when Postgres is disabled or
	// unreachable.
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Version: 1}
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported pcassist.yaml version: %d", cfg.Version)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Handoff {
	case "", "latest", "fifo":
	default:
		return fmt.Errorf("handoff: unknown policy %q", c.Handoff)
	}
	switch c.Solver.Placeability {
	case "", "always", "hard_drop":
	default:
		return fmt.Errorf("solver.placeability: unknown rule %q", c.Solver.Placeability)
	}
	switch c.Solver.Mode {
	case "", "first", "commit":
	default:
		return fmt.Errorf("solver.mode: unknown mode %q", c.Solver.Mode)
	}
	for letter, rows := range c.Geometry.SpawnRows {
		if len(letter) != 1 {
			return fmt.Errorf("geometry.spawn_rows: bad piece %q", letter)
		}
		if rows < -20 || rows > 20 {
			return fmt.Errorf("geometry.spawn_rows.%s: %d out of range", letter, rows)
		}
	}
	if c.Solver.MaxCandidates < 0 {
		return fmt.Errorf("solver.max_candidates: must not be negative")
	}
	return nil
}

// InstanceID returns the instance id, defaulting to "pcassist".
func (c *Config) InstanceID() string {
	if c.Instance.ID == "" {
		return "pcassist"
	}
	return c.Instance.ID
}

// DisplayName is the human name used in alerts, defaulting to the id.
func (c *Config) DisplayName() string {
	if c.Instance.Name != "" {
		return c.Instance.Name
	}
	return c.InstanceID()
}

// HandoffPolicy returns the hand-off policy, defaulting to latest-wins.
func (c *Config) HandoffPolicy() string {
	if c.Handoff == "" {
		return "latest"
	}
	return c.Handoff
}

// AllowHold returns whether the solver may use hold, defaulting to true.
func (c *Config) AllowHold() bool {
	if c.Solver.AllowHold == nil {
		return true
	}
	return *c.Solver.AllowHold
}

// Placeability returns the placement rule, defaulting to "always".
func (c *Config) Placeability() string {
	if c.Solver.Placeability == "" {
		return "always"
	}
	return c.Solver.Placeability
}

// Mode returns the broadcaster mode, defaulting to "first".
func (c *Config) Mode() string {
	if c.Solver.Mode == "" {
		return "first"
	}
	return c.Solver.Mode
}

// SearchTimeout returns the per-snapshot search budget, defaulting to 200ms.
func (c *Config) SearchTimeout() time.Duration {
	if c.Solver.Timeout <= 0 {
		return 200 * time.Millisecond
	}
	return c.Solver.Timeout
}

// FPS returns the overlay frame rate, defaulting to 60.
func (c *Config) FPS() int {
	if c.Overlay.FPS <= 0 {
		return 60
	}
	return c.Overlay.FPS
}

// MQTTClientID returns the client id, defaulting to the instance id.
func (c *Config) MQTTClientID() string {
	if c.MQTT.ClientID == "" {
		return c.InstanceID()
	}
	return c.MQTT.ClientID
}

// TopicPrefix returns the MQTT topic prefix, defaulting to "pcassist".
func (c *Config) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "pcassist"
	}
	return c.MQTT.TopicPrefix
}

// Heartbeat returns the agent's sample heartbeat, defaulting to 1s.
func (c *Config) Heartbeat() time.Duration {
	if c.MQTT.Heartbeat <= 0 {
		return time.Second
	}
	return c.MQTT.Heartbeat
}

// APIEnabled reports whether the HTTP server runs, defaulting to true.
func (c *Config) APIEnabled() bool {
	if c.API.Enabled == nil {
		return true
	}
	return *c.API.Enabled
}

// APIPort returns the HTTP port: PCASSIST_API_PORT from env, then the
// configured port, then 8080.
func (c *Config) APIPort() int {
	if v := os.Getenv("PCASSIST_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}
	if c.API.Port == 0 {
		return 8080
	}
	return c.API.Port
}

// PostgresDSN builds the connection string. The password comes from
// PGPASSWORD (or PGPASSWORD_FILE).
func (c *Config) PostgresDSN() (string, error) {
	password, err := ResolveSecret(EnvPostgresPassword)
	if err != nil {
		return "", err
	}

	host := c.Postgres.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Postgres.Port
	if port == 0 {
		port = 5432
	}
	user := c.Postgres.User
	if user == "" {
		user = "pcassist"
	}
	database := c.Postgres.Database
	if database == "" {
		database = "pcassist"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable", host, port, user, database)
	if password != "" {
		dsn += " password=" + password
	}
	return dsn, nil
}
