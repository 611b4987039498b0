package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"worldofbits.app/internal/persistence/kvstore"
	"worldofbits.app/internal/sim/session"
	"worldofbits.app/internal/sim/tuning"
	"worldofbits.app/internal/sim/viewport"
)

var (
	verbose    bool
	configPath string
	dbPath     string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "wob",
	Short: "World of Bits dev and ops tool",
	Long: `wob drives and maintains a World of Bits world stored in a local sqlite file.

The world is a grid of cells around a fixed origin. Cells hold power-of-two tokens
that the actor picks up, carries one at a time, and merges into equal tokens.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "tuning.yaml (default: built-in classroom world)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite world file (overrides storage.db_path)")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadTuning() (tuning.Tuning, error) {
	if configPath != "" {
		return tuning.Load(configPath)
	}
	t := tuning.Defaults()
	if err := tuning.ApplyEnv(&t); err != nil {
		return t, err
	}
	return t, t.Validate()
}

// openWorld opens the sqlite store and a session over it. The caller closes both.
func openWorld(r viewport.Renderer, j session.Journal) (*session.Session, *kvstore.SQLite, error) {
	t, err := loadTuning()
	if err != nil {
		return nil, nil, err
	}
	path := t.Storage.DBPath
	if dbPath != "" {
		path = dbPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	kv, err := kvstore.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	s, err := session.New(session.Config{Tuning: t, KV: kv, Renderer: r, Journal: j, Logger: logger})
	if err != nil {
		_ = kv.Close()
		return nil, nil, err
	}
	logger.Debug("world opened", zap.String("db", path), zap.String("session", s.ID()))
	return s, kv, nil
}

func closeWorld(s *session.Session, kv *kvstore.SQLite) error {
	err := s.Close()
	if cerr := kv.Close(); err == nil {
		err = cerr
	}
	return err
}
