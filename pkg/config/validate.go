package config

import (
	"fmt"
	"strings"

	"github.com/getmockd/tapedeck/pkg/codec"
	"github.com/getmockd/tapedeck/pkg/store"
	"github.com/getmockd/tapedeck/pkg/tape"
	"github.com/getmockd/tapedeck/pkg/tape/match"
)

// ValidationError describes an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

var validBackends = map[string]bool{
	store.BackendFile:   true,
	store.BackendMemory: true,
	store.BackendSQL:    true,
	store.BackendRedis:  true,
	store.BackendS3:     true,
}

var validSQLDrivers = map[string]bool{
	"sqlite":     true,
	"sqlite3":    true,
	"postgres":   true,
	"postgresql": true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if _, err := codec.ForFormat(c.Tapes.Format); err != nil {
		return &ValidationError{Field: "tapes.format", Message: err.Error()}
	}
	if _, err := tape.ParseMode(c.Tapes.Mode); err != nil {
		return &ValidationError{Field: "tapes.mode", Message: err.Error()}
	}
	if _, err := tape.ParseReplayPolicy(c.Tapes.Replay); err != nil {
		return &ValidationError{Field: "tapes.replay", Message: err.Error()}
	}
	if _, err := match.Parse(c.MatchSpec()); err != nil {
		return &ValidationError{Field: "match", Message: err.Error()}
	}

	kind := strings.ToLower(c.Backend.Kind)
	if !validBackends[kind] {
		return &ValidationError{
			Field:   "backend.kind",
			Message: fmt.Sprintf("invalid backend: %s (must be file, memory, sql, redis or s3)", c.Backend.Kind),
		}
	}
	switch kind {
	case store.BackendFile:
		if c.Tapes.Dir == "" {
			return &ValidationError{Field: "tapes.dir", Message: "tapes.dir is required for the file backend"}
		}
	case store.BackendSQL:
		if !validSQLDrivers[strings.ToLower(c.Backend.SQL.Driver)] {
			return &ValidationError{Field: "backend.sql.driver", Message: fmt.Sprintf("unsupported driver: %s", c.Backend.SQL.Driver)}
		}
		if c.Backend.SQL.DSN == "" {
			return &ValidationError{Field: "backend.sql.dsn", Message: "dsn is required for the sql backend"}
		}
	case store.BackendRedis:
		if c.Backend.Redis.Addr == "" {
			return &ValidationError{Field: "backend.redis.addr", Message: "addr is required for the redis backend"}
		}
		if c.Backend.Redis.DB < 0 {
			return &ValidationError{Field: "backend.redis.db", Message: "db must be >= 0"}
		}
	case store.BackendS3:
		if c.Backend.S3.Bucket == "" {
			return &ValidationError{Field: "backend.s3.bucket", Message: "bucket is required for the s3 backend"}
		}
	}

	if c.Flush.Parallelism < 1 {
		return &ValidationError{Field: "flush.parallelism", Message: "parallelism must be >= 1"}
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return &ValidationError{Field: "logging.level", Message: fmt.Sprintf("invalid level: %s", c.Logging.Level)}
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		return &ValidationError{Field: "logging.format", Message: fmt.Sprintf("invalid format: %s (must be text or json)", c.Logging.Format)}
	}
	return nil
}

// MatchSpec converts the match section into a rule spec.
func (c *Config) MatchSpec() match.Spec {
	return match.Spec{
		Rules:     c.Match.Rules,
		Headers:   c.Match.Headers,
		JSONPaths: c.Match.JSONPaths,
		Expr:      c.Match.Expr,
	}
}
