package training

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds training configuration. Zero values are replaced by the
// defaults from DefaultConfig when loading.
type Config struct {
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	LearningRate  float64 `yaml:"learning_rate"`
	Lambda        float64 `yaml:"lambda"`
	Seed          int64   `yaml:"seed"`
	LogLevel      string  `yaml:"log_level"`
	CheckpointDir string  `yaml:"checkpoint_dir"`
}

// DefaultConfig returns the default training configuration. Lambda is the
// regularization strength applied to the consolidated-parameter penalty.
func DefaultConfig() Config {
	return Config{
		Epochs:       10,
		BatchSize:    16,
		LearningRate: 0.01,
		Lambda:       10000,
		Seed:         1,
		LogLevel:     "info",
	}
}

// LoadConfig reads a YAML configuration file, filling unset fields with
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration bounds.
func (c Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", c.LearningRate)
	}
	if c.Lambda < 0 {
		return fmt.Errorf("lambda must be non-negative, got %g", c.Lambda)
	}
	return nil
}
