// Package agent owns the lifecycle of browsing agents: the registry that
// is the single authority on slot occupancy, and the scheduler that places,
// navigates, resizes, and destroys agents through the browser engine.
package agent

import "errors"

// Registry and scheduler error kinds.
var (
	ErrSlotOccupied  = errors.New("slot occupied")
	ErrUnknownAgent  = errors.New("unknown agent")
	ErrInvalidBounds = errors.New("invalid bounds")
	ErrInvalidSlot   = errors.New("slot out of range")
)

// MinDimension is the smallest usable view edge in pixels.
const MinDimension = 10

// Bounds is a view rectangle in window coordinates.
type Bounds struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Valid reports whether both dimensions are usable.
func (b Bounds) Valid() bool {
	return b.W >= MinDimension && b.H >= MinDimension
}

// Status is an agent's coarse navigation state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusError   Status = "error"
)

// Agent is one browsing agent's registry record.
type Agent struct {
	ID     string `json:"id"`
	Slot   int    `json:"slot"`
	URL    string `json:"url"`
	Status Status `json:"status"`
	Bounds Bounds `json:"bounds"`
}
