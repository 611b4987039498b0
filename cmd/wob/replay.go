package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"worldofbits.app/internal/persistence/journal"
	"worldofbits.app/internal/persistence/kvstore"
	"worldofbits.app/internal/persistence/snapshot"
	"worldofbits.app/internal/sim/session"
)

var (
	replayJournal  string
	replaySnapshot string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run a journal on a fresh in-memory world and verify every outcome",
	Long: `Reads interactions-*.jsonl.zst from --journal and feeds every entry through a new
in-memory world, optionally seeded from --snapshot. Exits non-zero if any outcome code,
cell state, hand or points total differs from what was recorded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayJournal == "" {
			return errors.New("missing --journal")
		}
		t, err := loadTuning()
		if err != nil {
			return err
		}
		entries, err := journal.ReadDir(replayJournal)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("no journal entries in %s", replayJournal)
		}

		kv := kvstore.NewMemory()
		defer kv.Close()
		cfg := session.Config{Tuning: t, KV: kv, Logger: logger}

		if replaySnapshot != "" {
			snap, err := snapshot.ReadSnapshot(replaySnapshot)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			seed := cfg
			seed.ID = snap.Header.Session
			s, err := session.New(seed)
			if err != nil {
				return err
			}
			if _, err := s.Import(snap); err != nil {
				return err
			}
			if err := s.Close(); err != nil {
				return err
			}
		}

		rep, err := session.Replay(entries, cfg)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, m := range rep.Mismatches {
			fmt.Fprintln(out, "mismatch:", m)
		}
		if !rep.OK() {
			logger.Warn("replay diverged", zap.Int("mismatches", len(rep.Mismatches)), zap.Int("entries", rep.Entries))
			return fmt.Errorf("replay diverged: %d mismatches over %d entries", len(rep.Mismatches), rep.Entries)
		}
		fmt.Fprintf(out, "replay ok: entries=%d sessions=%d points=%d\n", rep.Entries, rep.Sessions, rep.Points)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayJournal, "journal", "", "journal directory")
	replayCmd.Flags().StringVar(&replaySnapshot, "snapshot", "", "starting world (.snap.zst, optional)")
}
