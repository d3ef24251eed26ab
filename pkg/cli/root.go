package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/getmockd/tapedeck/pkg/config"
	"github.com/getmockd/tapedeck/pkg/deck"
	"github.com/getmockd/tapedeck/pkg/logging"
	"github.com/getmockd/tapedeck/pkg/store"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// envFile is loaded from the working directory before configuration.
const envFile = ".env"

// globals carries persistent flag values and the state built from them in
// PersistentPreRunE.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
	jsonOutput bool

	cfg      *config.Config
	log      *slog.Logger
	logClose io.Closer
}

// Execute runs the tapedeck command tree. This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewRootCmd returns the base command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "tapedeck",
		Short: "tapedeck inspects and edits recorded HTTP tapes",
		Long: `tapedeck manages tapes of recorded HTTP interactions.

Tapes live in a backing store (file, memory, sql, redis or s3) selected by
configuration. Configuration can be provided via --config, TAPEDECK_* environment
variables, or a tapedeck.yaml file in the working directory or the user config
directory. A .env file in the working directory is loaded first.`,
		SilenceUsage:  true,
		SilenceErrors: true, // We handle errors in Execute()
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return g.teardown()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to config file (default: discovered tapedeck.yaml)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&g.logFile, "log-file", "", "Also append JSON logs to this file")
	pf.BoolVar(&g.jsonOutput, "json", false, "Output command results in JSON format")

	rootCmd.AddCommand(
		newVersionCmd(g),
		newTapesCmd(g),
	)
	return rootCmd
}

func (g *globals) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	if g.logFile != "" {
		cfg.Logging.File = g.logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.cfg = cfg

	lc := logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: logging.ParseFormat(cfg.Logging.Format),
		Output: cmd.ErrOrStderr(),
	}
	if cfg.Logging.File == "" {
		g.log = logging.New(lc)
		return nil
	}
	log, closer, err := logging.NewWithFile(lc, cfg.Logging.File)
	if err != nil {
		return err
	}
	g.log, g.logClose = log, closer
	return nil
}

func (g *globals) teardown() error {
	if g.logClose == nil {
		return nil
	}
	err := g.logClose.Close()
	g.logClose = nil
	return err
}

// withStore opens the configured tape store, runs fn, and shuts the store
// down. A flush failure is reported even when fn succeeds.
func (g *globals) withStore(ctx context.Context, fn func(*store.TapeStore) error) (err error) {
	s, err := deck.Open(ctx, g.cfg, g.log)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Shutdown(context.WithoutCancel(ctx)))
	}()
	return fn(s)
}
