package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"worldofbits.app/internal/persistence/snapshot"
	"worldofbits.app/internal/sim/grid"
	"worldofbits.app/internal/sim/viewport"
)

var (
	inspectCell string
	exportOut   string
	importIn    string
	resetYes    bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List persisted cells and the points total",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, kv, err := openWorld(viewport.Discard{}, nil)
		if err != nil {
			return err
		}
		defer closeWorld(s, kv)

		blob, err := s.Store().Durable()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if inspectCell != "" {
			c, err := grid.ParseKey(inspectCell)
			if err != nil {
				return err
			}
			st, ok := blob[c.Key()]
			if !ok {
				fmt.Fprintf(w, "%s not materialized\n", c)
				return nil
			}
			fmt.Fprintf(w, "%s token=%s\n", c, tokenText(st.TokenPresent, st.Label()))
			return nil
		}

		keys := make([]string, 0, len(blob))
		tokens := 0
		for k, st := range blob {
			keys = append(keys, k)
			if st.TokenPresent {
				tokens++
			}
		}
		sort.Strings(keys)
		fmt.Fprintf(w, "points=%d cells=%d tokens=%d origin=%+v tile=%v\n",
			s.Points(), len(blob), tokens, s.Mapper().Origin, s.Mapper().TileDegrees)
		for _, k := range keys {
			st := blob[k]
			fmt.Fprintf(w, "%s\t%s\n", k, tokenText(st.TokenPresent, st.Label()))
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the world to a snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOut == "" {
			return errors.New("missing --out")
		}
		s, kv, err := openWorld(viewport.Discard{}, nil)
		if err != nil {
			return err
		}
		defer closeWorld(s, kv)

		snap, err := s.Export()
		if err != nil {
			return err
		}
		if err := snapshot.WriteSnapshot(exportOut, snap); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported cells=%d points=%d to %s\n", len(snap.Cells), snap.Points, exportOut)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the world with a snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importIn == "" {
			return errors.New("missing --in")
		}
		snap, err := snapshot.ReadSnapshot(importIn)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		s, kv, err := openWorld(viewport.Discard{}, nil)
		if err != nil {
			return err
		}
		if _, err := s.Import(snap); err != nil {
			_ = kv.Close()
			return err
		}
		if err := closeWorld(s, kv); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported cells=%d points=%d from session %s\n", len(snap.Cells), snap.Points, snap.Header.Session)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase every cell and the points total (irreversible)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return errors.New("reset erases the whole world; pass --yes to confirm")
		}
		s, kv, err := openWorld(viewport.Discard{}, nil)
		if err != nil {
			return err
		}
		if _, err := s.ResetWorld(); err != nil {
			_ = kv.Close()
			return err
		}
		if err := closeWorld(s, kv); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "world reset")
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectCell, "cell", "", "show one cell, as I,J")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "snapshot path (.snap.zst)")
	importCmd.Flags().StringVarP(&importIn, "in", "i", "", "snapshot path (.snap.zst)")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm the reset")
}

func tokenText(present bool, label string) string {
	if !present {
		return "none"
	}
	return label
}
