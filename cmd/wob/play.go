package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"worldofbits.app/internal/persistence/journal"
	"worldofbits.app/internal/sim/grid"
	"worldofbits.app/internal/sim/interact"
	"worldofbits.app/internal/sim/session"
	"worldofbits.app/internal/sim/viewport"
)

var journalDir string

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Drive a session from line commands on stdin",
	Long: `Reads one command per line and writes renderer commands and results as JSON lines.

Commands:
  view S W N E     report the viewport rectangle
  pos LAT LNG      report the actor position
  pickup I J       pick up the token in cell (I,J)
  place I J        place the held token into cell (I,J)
  move N|S|E|W     step the actor
  tp LAT LNG       teleport the actor
  inspect I J      show a cell
  reset            erase the world (irreversible)
  quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTuning()
		if err != nil {
			return err
		}
		dir := journalDir
		if dir == "" {
			dir = t.Storage.JournalDir
		}
		w := journal.NewWriter(dir)
		defer w.Close()

		out := json.NewEncoder(cmd.OutOrStdout())
		s, kv, err := openWorld(jsonRenderer{enc: out}, w)
		if err != nil {
			return err
		}
		runErr := play(s, cmd.InOrStdin(), out)
		if err := closeWorld(s, kv); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	},
}

func init() {
	playCmd.Flags().StringVar(&journalDir, "journal", "", "journal directory (overrides storage.journal_dir)")
}

type jsonRenderer struct {
	enc *json.Encoder
}

func (r jsonRenderer) CreateOverlay(o viewport.Overlay) {
	_ = r.enc.Encode(viewport.Command{Op: viewport.OpCreate, Key: o.Key, Overlay: &o})
}

func (r jsonRenderer) UpdateOverlay(cell grid.CellIndex, style viewport.Style, label string) {
	_ = r.enc.Encode(viewport.Command{Op: viewport.OpUpdate, Key: cell.Key(), Style: &style, Label: label})
}

func (r jsonRenderer) RemoveOverlay(cell grid.CellIndex) {
	_ = r.enc.Encode(viewport.Command{Op: viewport.OpRemove, Key: cell.Key()})
}

type result struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Hand    int    `json:"hand"`
	Points  int    `json:"points"`

	Cell *session.CellView `json:"cell,omitempty"`
}

type line struct {
	ev      session.Event
	inspect *grid.CellIndex
	quit    bool
}

func play(s *session.Session, in io.Reader, out *json.Encoder) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		l, err := parseLine(text)
		if err != nil {
			_ = out.Encode(result{Code: interact.Code(err), Message: err.Error()})
			continue
		}
		if l.quit {
			return nil
		}
		res := result{OK: true}
		if l.inspect != nil {
			v := s.Inspect(*l.inspect)
			res.Cell = &v
		} else {
			r, err := s.Handle(l.ev)
			if err != nil {
				res.OK = false
				res.Code = interact.Code(err)
				res.Message = interact.Message(err)
				if res.Message == "" {
					res.Message = err.Error()
				}
				logger.Debug("event rejected", zap.String("line", text), zap.Error(err))
			} else {
				res.Message = r.Outcome.Message
			}
		}
		res.Hand, _ = s.Hand()
		res.Points = s.Points()
		if err := out.Encode(res); err != nil {
			return err
		}
	}
	return sc.Err()
}

func parseLine(text string) (line, error) {
	f := strings.Fields(text)
	verb, args := strings.ToLower(f[0]), f[1:]
	bad := func(format string, a ...any) (line, error) {
		return line{}, fmt.Errorf("%w: "+format, append([]any{session.ErrBadInput}, a...)...)
	}

	switch verb {
	case "quit", "exit":
		return line{quit: true}, nil
	case "reset":
		return line{ev: session.ResetRequested{}}, nil
	case "view":
		v, err := floats(args, 4)
		if err != nil {
			return bad("view: %v", err)
		}
		return line{ev: session.ViewportChanged{View: grid.Rect{South: v[0], West: v[1], North: v[2], East: v[3]}}}, nil
	case "pos", "tp":
		v, err := floats(args, 2)
		if err != nil {
			return bad("%s: %v", verb, err)
		}
		p := grid.LatLng{Lat: v[0], Lng: v[1]}
		if verb == "tp" {
			return line{ev: session.TeleportRequested{Pos: p}}, nil
		}
		return line{ev: session.PositionReported{Pos: p}}, nil
	case "pickup", "place", "inspect":
		c, err := cellArgs(args)
		if err != nil {
			return bad("%s: %v", verb, err)
		}
		if verb == "inspect" {
			return line{inspect: &c}, nil
		}
		action, err := session.ParseAction(verb)
		if err != nil {
			return line{}, err
		}
		return line{ev: session.InteractRequested{Cell: c, Action: action}}, nil
	case "move":
		if len(args) != 1 {
			return bad("move: want one direction")
		}
		return line{ev: session.MoveRequested{Dir: session.Direction(strings.ToUpper(args[0]))}}, nil
	}
	return bad("unknown command %q", verb)
}

func floats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func cellArgs(args []string) (grid.CellIndex, error) {
	if len(args) == 1 {
		return grid.ParseKey(args[0])
	}
	if len(args) != 2 {
		return grid.CellIndex{}, errors.New("want I J or I,J")
	}
	return grid.ParseKey(args[0] + "," + args[1])
}
