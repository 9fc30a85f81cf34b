// Package config loads the agent configuration from DECKHAND_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/aretw0/deckhand/internal/command"
	"github.com/aretw0/deckhand/internal/redact"
	"github.com/aretw0/deckhand/pkg/adapters/cfn"
	"github.com/aretw0/deckhand/pkg/adapters/file"
	"github.com/aretw0/deckhand/pkg/adapters/metadata"
	"github.com/caarlos0/env/v11"
)

// Stage store backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the agent configuration.
type Config struct {
	StageBackend string `env:"STAGE_BACKEND" envDefault:"file"`
	StageDir     string `env:"STAGE_DIR"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"/var/lib/deckhand/stages.db"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"`
	RedisLock     bool          `env:"REDIS_LOCK"`
	StageTTL      time.Duration `env:"STAGE_TTL"`

	MetadataFile string `env:"METADATA_FILE"`
	CfnMetadata  bool   `env:"CFN_METADATA"`
	InfraFile    string `env:"INFRA_FILE" envDefault:"/etc/deckhand/infra.yaml"`
	HooksRoot    string `env:"HOOKS_ROOT"`
	AddonsRoot   string `env:"ADDONS_ROOT" envDefault:"/opt/deckhand/addons"`
	CfnBinDir    string `env:"CFN_BIN_DIR"`
	EventsDir    string `env:"EVENTS_DIR"`
	InstanceID   string `env:"INSTANCE_ID"`

	LogFile         string `env:"LOG_FILE"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	HistoryFile     string `env:"HISTORY_FILE"`
	MetricsTextfile string `env:"METRICS_TEXTFILE"`
	// RedactPatterns are regular expressions for request keys masked in logs.
	RedactPatterns []string `env:"REDACT_PATTERNS" envSeparator:","`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
}

// Load parses the environment and fills in package defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "DECKHAND_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StageDir == "" {
		c.StageDir = file.DefaultBasePath
	}
	if c.MetadataFile == "" {
		c.MetadataFile = metadata.DefaultPath
	}
	if c.HooksRoot == "" {
		c.HooksRoot = command.DefaultHooksRoot
	}
	if c.CfnBinDir == "" {
		c.CfnBinDir = cfn.DefaultBinDir
	}
	if len(c.RedactPatterns) == 0 {
		c.RedactPatterns = redact.DefaultPatterns
	}
}

// Validate checks the backend selection.
func (c Config) Validate() error {
	switch c.StageBackend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("stage backend %q requires DECKHAND_REDIS_ADDR", c.StageBackend)
		}
	default:
		return fmt.Errorf("unknown stage backend %q", c.StageBackend)
	}
	if c.RedisLock && c.RedisAddr == "" {
		return fmt.Errorf("DECKHAND_REDIS_LOCK requires DECKHAND_REDIS_ADDR")
	}
	if _, err := redact.Compile(c.RedactPatterns...); err != nil {
		return fmt.Errorf("invalid DECKHAND_REDACT_PATTERNS: %w", err)
	}
	return nil
}
