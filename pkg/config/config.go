package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "2s" or "15m" decode
// with time.ParseDuration semantics.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the captain's runtime settings
type Config struct {
	// Listen is the host:port the HTTP server binds.
	Listen string `yaml:"listen"`

	// DataDir is the root under which captain/ documents live.
	DataDir string `yaml:"data_dir"`

	// TickInterval is the control loop period.
	TickInterval Duration `yaml:"tick_interval"`

	// HeartbeatDeadline is the silence after which a sailor counts as DOWN.
	HeartbeatDeadline Duration `yaml:"heartbeat_deadline"`

	// RPCTimeout bounds each outbound call to a sailor.
	RPCTimeout Duration `yaml:"rpc_timeout"`

	// ArchiveAfter is how long terminal chores stay in chores.json before
	// moving to the archive database.
	ArchiveAfter Duration `yaml:"archive_after"`

	// TokenTTL is the lifetime of login session tokens.
	TokenTTL Duration `yaml:"token_ttl"`

	// AssignViaHeartbeat disables direct assign RPCs; dispatch then rides
	// exclusively on heartbeat replies.
	AssignViaHeartbeat bool `yaml:"assign_via_heartbeat"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:            "0.0.0.0:8000",
		DataDir:           "./data",
		TickInterval:      Duration(2 * time.Second),
		HeartbeatDeadline: Duration(60 * time.Second),
		RPCTimeout:        Duration(5 * time.Second),
		ArchiveAfter:      Duration(15 * time.Minute),
		TokenTTL:          Duration(time.Hour),
		LogLevel:          "info",
	}
}

// Load reads a YAML config file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	for name, d := range map[string]Duration{
		"tick_interval":      c.TickInterval,
		"heartbeat_deadline": c.HeartbeatDeadline,
		"rpc_timeout":        c.RPCTimeout,
		"archive_after":      c.ArchiveAfter,
		"token_ttl":          c.TokenTTL,
	} {
		if d.Std() <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d.Std())
		}
	}
	return nil
}
