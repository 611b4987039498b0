package viewport

import (
	"worldofbits.app/internal/sim/cellstore"
	"worldofbits.app/internal/sim/grid"
)

// Overlay is everything a renderer needs to draw one cell.
type Overlay struct {
	Cell   grid.CellIndex `json:"-"`
	Key    string         `json:"key"`
	Bounds grid.Rect      `json:"bounds"`
	Style  Style          `json:"style"`
	Label  string         `json:"label"`
}

// Renderer receives overlay commands keyed by cell. Implementations live outside the core.
type Renderer interface {
	CreateOverlay(o Overlay)
	UpdateOverlay(cell grid.CellIndex, style Style, label string)
	RemoveOverlay(cell grid.CellIndex)
}

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// Command is one renderer call, in a form that can be logged or serialized.
type Command struct {
	Op      Op       `json:"op"`
	Key     string   `json:"key"`
	Overlay *Overlay `json:"overlay,omitempty"`
	Style   *Style   `json:"style,omitempty"`
	Label   string   `json:"label,omitempty"`
}

// Recorder is a Renderer that keeps every command it receives.
type Recorder struct {
	Commands []Command
}

func (r *Recorder) CreateOverlay(o Overlay) {
	r.Commands = append(r.Commands, Command{Op: OpCreate, Key: o.Key, Overlay: &o})
}

func (r *Recorder) UpdateOverlay(cell grid.CellIndex, style Style, label string) {
	r.Commands = append(r.Commands, Command{Op: OpUpdate, Key: cell.Key(), Style: &style, Label: label})
}

func (r *Recorder) RemoveOverlay(cell grid.CellIndex) {
	r.Commands = append(r.Commands, Command{Op: OpRemove, Key: cell.Key()})
}

// Reset forgets recorded commands.
func (r *Recorder) Reset() { r.Commands = r.Commands[:0] }

// Count returns how many recorded commands have op.
func (r *Recorder) Count(op Op) int {
	n := 0
	for _, c := range r.Commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Discard drops every command.
type Discard struct{}

func (Discard) CreateOverlay(Overlay)                       {}
func (Discard) UpdateOverlay(grid.CellIndex, Style, string) {}
func (Discard) RemoveOverlay(grid.CellIndex)                {}

func overlayFor(m grid.Mapper, c grid.CellIndex, st cellstore.CellState) Overlay {
	return Overlay{
		Cell:   c,
		Key:    c.Key(),
		Bounds: m.BoundsForIndex(c),
		Style:  StyleFor(st),
		Label:  st.Label(),
	}
}
