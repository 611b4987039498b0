package viewport

import (
	"sort"

	"go.uber.org/zap"

	"worldofbits.app/internal/sim/cellstore"
	"worldofbits.app/internal/sim/grid"
	"worldofbits.app/internal/sim/worldgen"
)

const DefaultPadding = 2

type Options struct {
	// Padding widens the window this many tiles past each viewport edge.
	Padding int
	// RetainOverlay keeps state of cells that left the window in memory.
	// When false the state is committed and then dropped; re-entry reloads it.
	RetainOverlay bool
	Logger        *zap.Logger
}

// Diff lists the cells a single Update created and removed.
type Diff struct {
	Created []grid.CellIndex
	Removed []grid.CellIndex
}

func (d Diff) Empty() bool { return len(d.Created) == 0 && len(d.Removed) == 0 }

// Manager keeps the active cell set equal to the padded viewport window.
// It is driven by one caller at a time and holds no locks.
type Manager struct {
	mapper  grid.Mapper
	gen     *worldgen.Generator
	store   *cellstore.Store
	r       Renderer
	padding int
	retain  bool
	log     *zap.Logger

	active map[grid.CellIndex]struct{}
	window grid.Window
}

func NewManager(mapper grid.Mapper, gen *worldgen.Generator, store *cellstore.Store, r Renderer, opts Options) *Manager {
	if opts.Padding < 0 {
		opts.Padding = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if r == nil {
		r = Discard{}
	}
	return &Manager{
		mapper:  mapper,
		gen:     gen,
		store:   store,
		r:       r,
		padding: opts.Padding,
		retain:  opts.RetainOverlay,
		log:     opts.Logger,
		active:  map[grid.CellIndex]struct{}{},
	}
}

// Update recomputes the window for view, materializes and creates overlays for cells that
// entered it, and commits and removes overlays for cells that left it. Calling it again with
// the same view issues no commands.
func (m *Manager) Update(view grid.Rect) Diff {
	w := m.mapper.WindowForViewport(view, m.padding)
	m.window = w

	var d Diff
	w.Each(func(c grid.CellIndex) {
		if _, ok := m.active[c]; !ok {
			d.Created = append(d.Created, c)
		}
	})
	for n, st := range m.gen.MaterializeAll(d.Created) {
		c := d.Created[n]
		m.r.CreateOverlay(overlayFor(m.mapper, c, st))
		m.active[c] = struct{}{}
	}

	for c := range m.active {
		if !w.Contains(c) {
			d.Removed = append(d.Removed, c)
		}
	}
	if len(d.Removed) == 0 {
		return d
	}
	sortCells(d.Removed)

	flush := make(map[grid.CellIndex]cellstore.CellState, len(d.Removed))
	for _, c := range d.Removed {
		if st, ok := m.store.Get(c); ok {
			flush[c] = st
		}
	}
	if err := m.store.CommitBatch(flush); err != nil {
		m.log.Warn("persist cells leaving viewport", zap.Int("cells", len(flush)), zap.Error(err))
	}
	for _, c := range d.Removed {
		m.r.RemoveOverlay(c)
		delete(m.active, c)
		if !m.retain {
			m.store.Evict(c)
		}
	}
	m.log.Debug("viewport updated",
		zap.Int("created", len(d.Created)),
		zap.Int("removed", len(d.Removed)),
		zap.Int("active", len(m.active)))
	return d
}

// Repaint pushes the current state of an active cell to the renderer. Inactive cells are ignored.
func (m *Manager) Repaint(c grid.CellIndex, st cellstore.CellState, merged bool) bool {
	if _, ok := m.active[c]; !ok {
		return false
	}
	style := StyleFor(st)
	if merged {
		style = MergedStyle(st)
	}
	m.r.UpdateOverlay(c, style, st.Label())
	return true
}

// Clear removes every overlay and empties the active set. Cell state is not touched.
func (m *Manager) Clear() []grid.CellIndex {
	cells := m.Active()
	for _, c := range cells {
		m.r.RemoveOverlay(c)
	}
	m.active = map[grid.CellIndex]struct{}{}
	m.window = grid.Window{}
	return cells
}

func (m *Manager) IsActive(c grid.CellIndex) bool {
	_, ok := m.active[c]
	return ok
}

func (m *Manager) Len() int { return len(m.active) }

// Window is the window computed by the last Update.
func (m *Manager) Window() grid.Window { return m.window }

// Active returns the active cells in (i, j) order.
func (m *Manager) Active() []grid.CellIndex {
	out := make([]grid.CellIndex, 0, len(m.active))
	for c := range m.active {
		out = append(out, c)
	}
	sortCells(out)
	return out
}

func sortCells(cells []grid.CellIndex) {
	sort.Slice(cells, func(a, b int) bool {
		if cells[a].I != cells[b].I {
			return cells[a].I < cells[b].I
		}
		return cells[a].J < cells[b].J
	})
}
