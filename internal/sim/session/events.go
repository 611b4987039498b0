package session

import (
	"errors"
	"fmt"

	"worldofbits.app/internal/protocol"
	"worldofbits.app/internal/sim/grid"
)

type Action string

const (
	ActionPickup Action = "pickup"
	ActionPlace  Action = "place"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionPickup, ActionPlace:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrBadInput, s)
}

type Direction string

const (
	North Direction = "N"
	South Direction = "S"
	East  Direction = "E"
	West  Direction = "W"
)

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() string  { return e.code }

// ErrBadInput rejects malformed input events. Nothing is changed.
var ErrBadInput error = &codedError{code: protocol.ErrBadRequest, msg: "session: bad input"}

var errUnknownEvent = errors.New("session: unknown event type")

// Event is one input delivered to the session, processed strictly in arrival order.
type Event interface {
	isEvent()
}

type PositionReported struct {
	Pos grid.LatLng
}

type ViewportChanged struct {
	View grid.Rect
}

type InteractRequested struct {
	Cell   grid.CellIndex
	Action Action
}

type MoveRequested struct {
	Dir  Direction
	Step float64
}

type TeleportRequested struct {
	Pos grid.LatLng
}

type ResetRequested struct{}

func (PositionReported) isEvent()  {}
func (ViewportChanged) isEvent()   {}
func (InteractRequested) isEvent() {}
func (MoveRequested) isEvent()     {}
func (TeleportRequested) isEvent() {}
func (ResetRequested) isEvent()    {}
