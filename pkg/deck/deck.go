// Package deck assembles a tape store from configuration.
package deck

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getmockd/tapedeck/pkg/codec"
	"github.com/getmockd/tapedeck/pkg/config"
	"github.com/getmockd/tapedeck/pkg/logging"
	"github.com/getmockd/tapedeck/pkg/store"
	"github.com/getmockd/tapedeck/pkg/store/file"
	"github.com/getmockd/tapedeck/pkg/store/memory"
	"github.com/getmockd/tapedeck/pkg/store/redisstore"
	"github.com/getmockd/tapedeck/pkg/store/s3store"
	"github.com/getmockd/tapedeck/pkg/store/sqlstore"
	"github.com/getmockd/tapedeck/pkg/tape"
	"github.com/getmockd/tapedeck/pkg/tape/match"
)

// Open builds the backend, codec, match rule and tape defaults described by
// cfg and returns a ready TapeStore. The caller must Shutdown the store.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*store.TapeStore, error) {
	if log == nil {
		log = logging.Nop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := codec.ForFormat(cfg.Tapes.Format)
	if err != nil {
		return nil, err
	}
	opts, err := TapeOptions(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := OpenBackend(ctx, cfg, c, log)
	if err != nil {
		return nil, err
	}

	log.Debug("opened tape store",
		"backend", cfg.Backend.Kind,
		"format", c.Name(),
		"mode", cfg.Tapes.Mode,
		"replay", cfg.Tapes.Replay,
	)
	return store.New(backend, c,
		store.WithLogger(log.With("component", "store")),
		store.WithTapeDefaults(opts...),
		store.WithFlushParallelism(cfg.Flush.Parallelism),
	), nil
}

// TapeOptions returns the per-tape defaults described by cfg.
func TapeOptions(cfg *config.Config) ([]tape.Option, error) {
	mode, err := tape.ParseMode(cfg.Tapes.Mode)
	if err != nil {
		return nil, err
	}
	replay, err := tape.ParseReplayPolicy(cfg.Tapes.Replay)
	if err != nil {
		return nil, err
	}
	rule, err := match.Parse(cfg.MatchSpec())
	if err != nil {
		return nil, err
	}
	return []tape.Option{tape.WithMode(mode), tape.WithReplay(replay), tape.WithRule(rule)}, nil
}

// OpenBackend connects the backend selected by cfg.Backend.Kind.
func OpenBackend(ctx context.Context, cfg *config.Config, c tape.Codec, log *slog.Logger) (store.Backend, error) {
	switch kind := strings.ToLower(cfg.Backend.Kind); kind {
	case store.BackendFile:
		return file.New(cfg.Tapes.Dir, c.Extension(), file.WithLogger(log))
	case store.BackendMemory:
		return memory.New(), nil
	case store.BackendSQL:
		dialect, err := sqlstore.ParseDialect(cfg.Backend.SQL.Driver)
		if err != nil {
			return nil, err
		}
		return sqlstore.Open(ctx, dialect, cfg.Backend.SQL.DSN, cfg.Backend.SQL.Table)
	case store.BackendRedis:
		return redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Backend.Redis.Addr,
			Password: cfg.Backend.Redis.Password,
			DB:       cfg.Backend.Redis.DB,
			Prefix:   cfg.Backend.Redis.Prefix,
		})
	case store.BackendS3:
		return s3store.Open(ctx, s3store.Config{
			Bucket:          cfg.Backend.S3.Bucket,
			Region:          cfg.Backend.S3.Region,
			Endpoint:        cfg.Backend.S3.Endpoint,
			Prefix:          cfg.Backend.S3.Prefix,
			Extension:       c.Extension(),
			AccessKeyID:     cfg.Backend.S3.AccessKeyID,
			SecretAccessKey: cfg.Backend.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Kind)
	}
}
