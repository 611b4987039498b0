package session

import (
	"errors"
	"fmt"
	"strconv"

	"worldofbits.app/internal/persistence/journal"
	"worldofbits.app/internal/sim/cellstore"
	"worldofbits.app/internal/sim/grid"
	"worldofbits.app/internal/sim/interact"
)

// Mismatch is one journal entry whose replayed result differs from the recorded one.
type Mismatch struct {
	Session string
	Seq     uint64
	Field   string
	Want    string
	Got     string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("session=%s seq=%d %s: want %s got %s", m.Session, m.Seq, m.Field, m.Want, m.Got)
}

type ReplayReport struct {
	Entries    int
	Sessions   int
	Points     int
	Mismatches []Mismatch
}

func (r ReplayReport) OK() bool { return len(r.Mismatches) == 0 }

// Replay feeds recorded entries through fresh sessions built from cfg and compares every
// outcome code, resulting cell state, hand and points total. A change of session id in the
// journal closes the running session and opens the next one on the same store, as a
// reload would. cfg.KV should start out holding the world the journal started from.
func Replay(entries []journal.Entry, cfg Config) (ReplayReport, error) {
	var rep ReplayReport
	cfg.Journal = nil

	var s *Session
	defer func() {
		if s != nil {
			_ = s.Close()
		}
	}()

	for _, e := range entries {
		if s == nil || e.Session != s.ID() {
			if s != nil {
				if err := s.Close(); err != nil {
					return rep, err
				}
			}
			c := cfg
			c.ID = e.Session
			var err error
			if s, err = New(c); err != nil {
				return rep, err
			}
			rep.Sessions++
		}
		rep.Entries++

		note := func(field, want, got string) {
			rep.Mismatches = append(rep.Mismatches, Mismatch{Session: e.Session, Seq: e.Seq, Field: field, Want: want, Got: got})
		}

		switch e.Kind {
		case journal.KindPosition:
			if e.Pos == nil {
				return rep, fmt.Errorf("entry %s/%d: position without pos", e.Session, e.Seq)
			}
			if err := s.ReportActorPosition(*e.Pos); err != nil {
				return rep, fmt.Errorf("entry %s/%d: %w", e.Session, e.Seq, err)
			}
		case journal.KindViewport:
			if e.Viewport == nil {
				return rep, fmt.Errorf("entry %s/%d: viewport without rect", e.Session, e.Seq)
			}
			if _, err := s.ReportViewport(*e.Viewport); err != nil {
				return rep, fmt.Errorf("entry %s/%d: %w", e.Session, e.Seq, err)
			}
		case journal.KindInteract:
			idx, err := grid.ParseKey(e.Cell)
			if err != nil {
				return rep, fmt.Errorf("entry %s/%d: %w", e.Session, e.Seq, err)
			}
			action, err := ParseAction(e.Action)
			if err != nil {
				return rep, fmt.Errorf("entry %s/%d: %w", e.Session, e.Seq, err)
			}
			_, ierr := s.Interact(idx, action)
			if errors.Is(ierr, ErrBadInput) {
				return rep, fmt.Errorf("entry %s/%d: %w", e.Session, e.Seq, ierr)
			}
			if got := interact.Code(ierr); got != e.Code {
				note("code", quote(e.Code), quote(got))
			}
			if e.State != nil {
				got, ok := s.store.Get(idx)
				if !ok || got != *e.State {
					note("state", stateString(e.State, true), stateString(&got, ok))
				}
			}
		case journal.KindReset:
			if _, err := s.ResetWorld(); err != nil {
				return rep, fmt.Errorf("entry %s/%d: %w", e.Session, e.Seq, err)
			}
		default:
			return rep, fmt.Errorf("entry %s/%d: unknown kind %q", e.Session, e.Seq, e.Kind)
		}

		if hand, _ := s.Hand(); hand != e.Hand {
			note("hand", strconv.Itoa(e.Hand), strconv.Itoa(hand))
		}
		if pts := s.Points(); pts != e.Points {
			note("points", strconv.Itoa(e.Points), strconv.Itoa(pts))
		}
	}
	if s != nil {
		rep.Points = s.Points()
	}
	return rep, nil
}

func quote(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}

func stateString(st *cellstore.CellState, ok bool) string {
	if !ok {
		return "missing"
	}
	return fmt.Sprintf("%+v", *st)
}
