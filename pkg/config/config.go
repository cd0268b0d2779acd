package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of a threadqueue pipeline run.
type Config struct {
	// QueueCapacity bounds the message queue. Zero means unbounded.
	QueueCapacity int `yaml:"queue_capacity"`
	// Producers is the number of goroutines relaying from the source.
	Producers int `yaml:"producers"`
	// Workers is the number of goroutines consuming from the queue.
	Workers int `yaml:"workers"`
	// Messages is how many messages the source yields.
	Messages uint64 `yaml:"messages"`
	// Topics the source rotates through.
	Topics []string `yaml:"topics"`
	// PutTimeout bounds how long a producer waits for room. Zero blocks.
	PutTimeout time.Duration `yaml:"put_timeout"`
	// DrainTimeout bounds how long workers keep draining after shutdown.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	// DBPath is where delivery records are kept; ":memory:" keeps them in RAM.
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		QueueCapacity: 1024,
		Producers:     1,
		Workers:       4,
		Messages:      1000,
		Topics:        []string{"threadqueue/default"},
		DrainTimeout:  15 * time.Second,
		DBPath:        ":memory:",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load reads configuration from a YAML file on top of the defaults. If path
// is empty, it returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	bz, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(bz, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// FromEnv overlays THREADQUEUE_* environment variables onto cfg.
func FromEnv(cfg *Config) error {
	if v := os.Getenv("THREADQUEUE_QUEUE_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid THREADQUEUE_QUEUE_CAPACITY: %w", err)
		}
		cfg.QueueCapacity = n
	}
	if v := os.Getenv("THREADQUEUE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid THREADQUEUE_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("THREADQUEUE_PRODUCERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid THREADQUEUE_PRODUCERS: %w", err)
		}
		cfg.Producers = n
	}
	if v := os.Getenv("THREADQUEUE_MESSAGES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid THREADQUEUE_MESSAGES: %w", err)
		}
		cfg.Messages = n
	}
	if v := os.Getenv("THREADQUEUE_TOPICS"); v != "" {
		var topics []string
		for _, topic := range strings.Split(v, ",") {
			if topic = strings.TrimSpace(topic); topic != "" {
				topics = append(topics, topic)
			}
		}
		cfg.Topics = topics
	}
	if v := os.Getenv("THREADQUEUE_PUT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid THREADQUEUE_PUT_TIMEOUT: %w", err)
		}
		cfg.PutTimeout = d
	}
	if v := os.Getenv("THREADQUEUE_DRAIN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid THREADQUEUE_DRAIN_TIMEOUT: %w", err)
		}
		cfg.DrainTimeout = d
	}
	if v := os.Getenv("THREADQUEUE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("THREADQUEUE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("THREADQUEUE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.QueueCapacity < 0:
		return errors.New("queue_capacity must not be negative")
	case c.Producers < 1:
		return errors.New("producers must be positive")
	case c.Workers < 1:
		return errors.New("workers must be positive")
	case c.PutTimeout < 0:
		return errors.New("put_timeout must not be negative")
	case c.DrainTimeout < 0:
		return errors.New("drain_timeout must not be negative")
	case c.DBPath == "":
		return errors.New("db_path must be set")
	}

	return nil
}
