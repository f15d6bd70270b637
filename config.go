package txm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the engine's tunable knobs. Zero value is not meaningful;
// use DefaultConfig or LoadConfig.
type Config struct {
	// GCStepsSize is how many incremental GC steps a statement that creates
	// a new story schedules for the next GC opportunity.
	GCStepsSize int `yaml:"gc_steps_size"`

	// SweepCronExpr drives gcsched.Scheduler's background full sweep.
	SweepCronExpr string `yaml:"sweep_cron_expr"`

	// LogVerbose enables per-sweep story-count logging in gcsched.
	LogVerbose bool `yaml:"log_verbose"`
}

// DefaultConfig returns the compiled-in defaults: GCStepsSize=2 (matching
// GC_STEPS_SIZE in the reference implementation) and a five-second sweep.
func DefaultConfig() Config {
	return Config{
		GCStepsSize:   2,
		SweepCronExpr: "*/5 * * * * *",
		LogVerbose:    false,
	}
}

// LoadConfig reads a YAML config file at path, overlaying any fields it
// sets on top of DefaultConfig. A zero-value path, or a missing file,
// yields the defaults rather than an error; a malformed file is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("txm: reading config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("txm: parsing config %q: %w", path, err)
	}
	return cfg, nil
}
