package protocol

const (
	// Input surface validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Token interaction layer.
	ErrNoToken      = "E_NO_TOKEN"
	ErrHandOccupied = "E_HAND_OCCUPIED"
	ErrHandEmpty    = "E_HAND_EMPTY"
	ErrTooFar       = "E_TOO_FAR"
	ErrMismatch     = "E_MISMATCH"

	// Storage. Never surfaced to the actor.
	ErrStoreCorrupt = "E_STORE_CORRUPT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:   {},
	ErrNoToken:      {},
	ErrHandOccupied: {},
	ErrHandEmpty:    {},
	ErrTooFar:       {},
	ErrMismatch:     {},
	ErrStoreCorrupt: {},
	ErrInternal:     {},
}

// IsKnownCode reports whether code is a protocol code. The empty code means success.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Coder is implemented by errors that carry a protocol code.
type Coder interface {
	Code() string
}
