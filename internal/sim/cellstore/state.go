package cellstore

import "strconv"

// CellState is what a cell holds. TokenValue is set iff TokenPresent, and is then a power of two >= 2.
type CellState struct {
	TokenPresent bool `json:"tokenPresent"`
	TokenValue   int  `json:"tokenValue,omitempty"`
}

func Empty() CellState { return CellState{} }

func WithToken(v int) CellState { return CellState{TokenPresent: true, TokenValue: v} }

func (s CellState) Valid() bool {
	if !s.TokenPresent {
		return s.TokenValue == 0
	}
	return IsTokenValue(s.TokenValue)
}

// Label is the text shown on the cell: the value, or "" when empty.
func (s CellState) Label() string {
	if !s.TokenPresent {
		return ""
	}
	return strconv.Itoa(s.TokenValue)
}

func IsTokenValue(v int) bool {
	return v >= 2 && v&(v-1) == 0
}
