// Package interact implements token pickup, place and merge for the single actor.
//
// Each operation validates first and only then writes: hand, then cell, then one commit.
// A failed operation leaves hand and cell exactly as they were.
package interact

import (
	"fmt"

	"go.uber.org/zap"

	"worldofbits.app/internal/sim/cellstore"
	"worldofbits.app/internal/sim/grid"
)

const DefaultRadiusMeters = 50.0

// Hand is the actor's single token slot. The zero value is empty.
type Hand struct {
	value int
}

// Value returns the held token, ok=false when empty.
func (h *Hand) Value() (int, bool) {
	return h.value, h.value != 0
}

func (h *Hand) Empty() bool { return h.value == 0 }

// Restore sets the hand directly, for replay and tests. v must be 0 or a token value.
func (h *Hand) Restore(v int) error {
	if v != 0 && !cellstore.IsTokenValue(v) {
		return fmt.Errorf("interact: %d is not a token value", v)
	}
	h.value = v
	return nil
}

// CellSource resolves a cell's current state, materializing it on first sight.
type CellSource interface {
	Materialize(idx grid.CellIndex) cellstore.CellState
}

type Options struct {
	RadiusMeters float64
	Logger       *zap.Logger
}

type Engine struct {
	store  *cellstore.Store
	cells  CellSource
	mapper grid.Mapper
	radius float64
	log    *zap.Logger
}

// Outcome describes a successful interaction.
type Outcome struct {
	Cell   grid.CellIndex
	State  cellstore.CellState
	Hand   int
	Points int
	Merged bool
	// Message is set for merges: "Merged to N!".
	Message string
}

func NewEngine(store *cellstore.Store, cells CellSource, mapper grid.Mapper, opts Options) *Engine {
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = DefaultRadiusMeters
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{store: store, cells: cells, mapper: mapper, radius: opts.RadiusMeters, log: opts.Logger}
}

func (e *Engine) Radius() float64 { return e.radius }

// InReach reports whether pos is within the interaction radius of the cell's center.
func (e *Engine) InReach(idx grid.CellIndex, pos grid.LatLng) bool {
	if !pos.Valid() {
		return false
	}
	return grid.Distance(pos, e.mapper.CenterOf(idx)) <= e.radius
}

// Pickup moves the cell's token into the hand.
func (e *Engine) Pickup(h *Hand, idx grid.CellIndex, pos grid.LatLng) (Outcome, error) {
	st := e.cells.Materialize(idx)
	if !st.TokenPresent {
		return Outcome{}, ErrNoToken
	}
	if !h.Empty() {
		return Outcome{}, ErrHandOccupied
	}
	if !e.InReach(idx, pos) {
		return Outcome{}, ErrTooFar
	}

	h.value = st.TokenValue
	next := cellstore.Empty()
	e.commit(idx, next)
	return Outcome{Cell: idx, State: next, Hand: h.value}, nil
}

// Place drops the held token into the cell, merging with an equal token.
// A merge awards points equal to the merged value.
func (e *Engine) Place(h *Hand, idx grid.CellIndex, pos grid.LatLng) (Outcome, error) {
	held, ok := h.Value()
	if !ok {
		return Outcome{}, ErrHandEmpty
	}
	if !e.InReach(idx, pos) {
		return Outcome{}, ErrTooFar
	}
	st := e.cells.Materialize(idx)

	switch {
	case !st.TokenPresent:
		next := cellstore.WithToken(held)
		h.value = 0
		e.commit(idx, next)
		return Outcome{Cell: idx, State: next}, nil

	case st.TokenValue == held:
		next := cellstore.WithToken(st.TokenValue * 2)
		h.value = 0
		e.commit(idx, next)
		return Outcome{
			Cell:    idx,
			State:   next,
			Points:  next.TokenValue,
			Merged:  true,
			Message: fmt.Sprintf("Merged to %d!", next.TokenValue),
		}, nil

	default:
		return Outcome{}, ErrMismatch
	}
}

// CanPickup and CanPlace mirror the guards that do not depend on distance.
func CanPickup(h *Hand, st cellstore.CellState) bool { return st.TokenPresent && h.Empty() }

func CanPlace(h *Hand) bool { return !h.Empty() }

func (e *Engine) commit(idx grid.CellIndex, st cellstore.CellState) {
	if err := e.store.Commit(idx, st); err != nil {
		e.log.Warn("persist cell after interaction", zap.Stringer("cell", idx), zap.Error(err))
	}
}
