package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/getmockd/tapedeck/pkg/store"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TAPEDECK"

// ConfigEnvVar names an explicit config file path.
const ConfigEnvVar = EnvPrefix + "_CONFIG"

// configName is the base name searched for when no path is given.
const configName = "tapedeck"

// Config is the complete tapedeck configuration.
type Config struct {
	Tapes   TapesConfig   `mapstructure:"tapes" json:"tapes" yaml:"tapes"`
	Match   MatchConfig   `mapstructure:"match" json:"match" yaml:"match"`
	Backend BackendConfig `mapstructure:"backend" json:"backend" yaml:"backend"`
	Flush   FlushConfig   `mapstructure:"flush" json:"flush" yaml:"flush"`
	Logging LoggingConfig `mapstructure:"logging" json:"logging" yaml:"logging"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" json:"file,omitempty" yaml:"-"`
}

// TapesConfig holds tape defaults.
type TapesConfig struct {
	// Dir is the file backend root. Defaults to the XDG data directory.
	Dir    string `mapstructure:"dir" json:"dir" yaml:"dir"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
	Mode   string `mapstructure:"mode" json:"mode" yaml:"mode"`
	Replay string `mapstructure:"replay" json:"replay" yaml:"replay"`
}

// MatchConfig selects the match rule applied to every tape.
type MatchConfig struct {
	Rules     []string `mapstructure:"rules" json:"rules" yaml:"rules"`
	Headers   []string `mapstructure:"headers" json:"headers,omitempty" yaml:"headers,omitempty"`
	JSONPaths []string `mapstructure:"jsonPaths" json:"jsonPaths,omitempty" yaml:"jsonPaths,omitempty"`
	Expr      string   `mapstructure:"expr" json:"expr,omitempty" yaml:"expr,omitempty"`
}

// BackendConfig selects and configures the backing store.
type BackendConfig struct {
	Kind  string      `mapstructure:"kind" json:"kind" yaml:"kind"`
	SQL   SQLConfig   `mapstructure:"sql" json:"sql" yaml:"sql"`
	Redis RedisConfig `mapstructure:"redis" json:"redis" yaml:"redis"`
	S3    S3Config    `mapstructure:"s3" json:"s3" yaml:"s3"`
}

// SQLConfig configures the sql backend.
type SQLConfig struct {
	Driver string `mapstructure:"driver" json:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" json:"-" yaml:"dsn"`
	Table  string `mapstructure:"table" json:"table" yaml:"table"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr" yaml:"addr"`
	Password string `mapstructure:"password" json:"-" yaml:"password"`
	DB       int    `mapstructure:"db" json:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" json:"prefix" yaml:"prefix"`
}

// S3Config configures the s3 backend.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" json:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Prefix          string `mapstructure:"prefix" json:"prefix" yaml:"prefix"`
	AccessKeyID     string `mapstructure:"accessKeyId" json:"-" yaml:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secretAccessKey" json:"-" yaml:"secretAccessKey"`
}

// FlushConfig tunes Shutdown.
type FlushConfig struct {
	Parallelism int `mapstructure:"parallelism" json:"parallelism" yaml:"parallelism"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
	File   string `mapstructure:"file" json:"file,omitempty" yaml:"file,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tapes: TapesConfig{
			Dir:    store.DefaultTapesDir(),
			Format: "yaml",
			Mode:   "read-write",
			Replay: "idempotent",
		},
		Match: MatchConfig{
			Rules: []string{"method", "uri"},
		},
		Backend: BackendConfig{
			Kind: store.BackendFile,
			SQL: SQLConfig{
				Driver: "sqlite",
				Table:  "tapes",
			},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "tapedeck:tapes:",
			},
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "tapes/",
			},
		},
		Flush: FlushConfig{
			Parallelism: store.DefaultFlushParallelism,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// setDefaults registers every key with viper so that AutomaticEnv can
// override keys that appear in no config file.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("tapes.dir", d.Tapes.Dir)
	v.SetDefault("tapes.format", d.Tapes.Format)
	v.SetDefault("tapes.mode", d.Tapes.Mode)
	v.SetDefault("tapes.replay", d.Tapes.Replay)
	v.SetDefault("match.rules", d.Match.Rules)
	v.SetDefault("match.headers", []string{})
	v.SetDefault("match.jsonPaths", []string{})
	v.SetDefault("match.expr", "")
	v.SetDefault("backend.kind", d.Backend.Kind)
	v.SetDefault("backend.sql.driver", d.Backend.SQL.Driver)
	v.SetDefault("backend.sql.dsn", "")
	v.SetDefault("backend.sql.table", d.Backend.SQL.Table)
	v.SetDefault("backend.redis.addr", d.Backend.Redis.Addr)
	v.SetDefault("backend.redis.password", "")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.redis.prefix", d.Backend.Redis.Prefix)
	v.SetDefault("backend.s3.bucket", "")
	v.SetDefault("backend.s3.region", d.Backend.S3.Region)
	v.SetDefault("backend.s3.endpoint", "")
	v.SetDefault("backend.s3.prefix", d.Backend.S3.Prefix)
	v.SetDefault("backend.s3.accessKeyId", "")
	v.SetDefault("backend.s3.secretAccessKey", "")
	v.SetDefault("flush.parallelism", d.Flush.Parallelism)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", "")
}

// Load reads configuration from path (or a discovered file when path is
// empty), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(ConfigEnvVar)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath(store.DefaultConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.expandEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv substitutes ${VAR} references in values that commonly carry
// secrets or machine-specific paths.
func (c *Config) expandEnv() {
	for _, s := range []*string{
		&c.Tapes.Dir,
		&c.Backend.SQL.DSN,
		&c.Backend.Redis.Addr,
		&c.Backend.Redis.Password,
		&c.Backend.S3.Bucket,
		&c.Backend.S3.Endpoint,
		&c.Backend.S3.AccessKeyID,
		&c.Backend.S3.SecretAccessKey,
		&c.Logging.File,
	} {
		*s = ExpandEnvVars(*s)
	}
}
