// Package config loads the engine configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "500ms" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(td)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every tunable of the engine. Zero values fall back to the
// defaults from Default().
type Config struct {
	// RulesFile is where the rule definition file is written.
	RulesFile string `yaml:"rules_file"`

	// RulesDir receives the compiled rule program.
	RulesDir string `yaml:"rules_dir"`

	// CompilerBinary is the external rule compiler. Empty skips external
	// compilation and programs the rule definition file directly, which
	// only software device backends accept.
	CompilerBinary string `yaml:"compiler_binary"`

	// PortID selects the device port.
	PortID int `yaml:"port_id"`

	// QueueCount is the number of queues configured at port init.
	QueueCount int `yaml:"queue_count"`

	// PollTimeout bounds each search call's wait for a response.
	PollTimeout Duration `yaml:"poll_timeout"`

	// PollInterval is the delay between response polls.
	PollInterval Duration `yaml:"poll_interval"`

	// StorePath, if set, enables the match-event log (":memory:" or a
	// SQLite file path).
	StorePath string `yaml:"store_path"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		RulesFile:    "/tmp/rxpse.rules",
		RulesDir:     "/tmp/rxpse-rules",
		QueueCount:   1,
		PollTimeout:  Duration(2 * time.Second),
		PollInterval: Duration(20 * time.Microsecond),
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.RulesFile == "" {
		return fmt.Errorf("rules_file is required")
	}
	if c.QueueCount <= 0 {
		return fmt.Errorf("queue_count must be positive, got %d", c.QueueCount)
	}
	if c.PollTimeout < 0 {
		return fmt.Errorf("poll_timeout must not be negative")
	}
	return nil
}
