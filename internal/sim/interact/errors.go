package interact

import (
	"errors"

	"worldofbits.app/internal/protocol"
)

// Error is a recoverable, actor-facing interaction failure. State is unchanged when one is returned.
type Error struct {
	code string
	text string
	msg  string
}

func (e *Error) Error() string { return "interact: " + e.text }

func (e *Error) Code() string { return e.code }

// Message is the text shown to the actor.
func (e *Error) Message() string { return e.msg }

var (
	ErrNoToken = &Error{
		code: protocol.ErrNoToken,
		text: "no token in cell",
		msg:  "No token here to pick up.",
	}
	ErrHandOccupied = &Error{
		code: protocol.ErrHandOccupied,
		text: "hand already holds a token",
		msg:  "You already have a token in hand. You can only hold one.",
	}
	ErrHandEmpty = &Error{
		code: protocol.ErrHandEmpty,
		text: "hand is empty",
		msg:  "You have no token in hand to place.",
	}
	ErrTooFar = &Error{
		code: protocol.ErrTooFar,
		text: "cell out of reach",
		msg:  "Too far away. Move closer.",
	}
	ErrMismatch = &Error{
		code: protocol.ErrMismatch,
		text: "cell holds a different token",
		msg:  "Cell already has a different token. You can't place here.",
	}
)

// Message returns the actor-facing text for err, or "" if err is not an interaction error.
func Message(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Message()
	}
	return ""
}

// Code returns the protocol code for err: "" for nil, E_INTERNAL for unknown errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var c protocol.Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return protocol.ErrInternal
}
