package viewport

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"worldofbits.app/internal/persistence/kvstore"
	"worldofbits.app/internal/sim/cellstore"
	"worldofbits.app/internal/sim/grid"
	"worldofbits.app/internal/sim/worldgen"
)

type fixture struct {
	kv    *kvstore.Memory
	store *cellstore.Store
	rec   *Recorder
	m     *Manager
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	kv := kvstore.NewMemory()
	store := cellstore.New(kv, cellstore.Options{})
	gen := worldgen.New(store, worldgen.Options{ForceSpawn: true})
	rec := &Recorder{}
	mapper := grid.NewMapper(grid.LatLng{}, 1)
	return &fixture{kv: kv, store: store, rec: rec, m: NewManager(mapper, gen, store, rec, opts)}
}

// view covers exactly cell (i,j) on a unit grid at the origin.
func view(i, j int) grid.Rect {
	return grid.Rect{
		South: float64(i) + 0.25, North: float64(i) + 0.75,
		West: float64(j) + 0.25, East: float64(j) + 0.75,
	}
}

func TestUpdate_CreatesPaddedWindow(t *testing.T) {
	f := newFixture(t, Options{Padding: 1})
	d := f.m.Update(view(0, 0))
	if len(d.Created) != 9 || len(d.Removed) != 0 {
		t.Fatalf("first update: created=%d removed=%d", len(d.Created), len(d.Removed))
	}
	if f.rec.Count(OpCreate) != 9 {
		t.Fatalf("create commands got %d want 9", f.rec.Count(OpCreate))
	}
	want := grid.Window{IMin: -1, IMax: 1, JMin: -1, JMax: 1}
	if f.m.Window() != want {
		t.Fatalf("window got %+v want %+v", f.m.Window(), want)
	}
	for _, c := range f.rec.Commands {
		o := c.Overlay
		if o.Label == "" || o.Style.FillOpacity != TokenOpacity {
			t.Fatalf("force-spawned cell %s rendered as empty: %+v", o.Key, o)
		}
		if o.Bounds != f.m.mapper.BoundsForIndex(o.Cell) {
			t.Fatalf("overlay %s bounds %+v", o.Key, o.Bounds)
		}
	}
}

func TestUpdate_IdempotentForSameViewport(t *testing.T) {
	f := newFixture(t, Options{Padding: 2})
	f.m.Update(view(3, -4))
	n := len(f.rec.Commands)
	d := f.m.Update(view(3, -4))
	if !d.Empty() {
		t.Fatalf("second update produced diff %+v", d)
	}
	if len(f.rec.Commands) != n {
		t.Fatalf("second update issued %d extra commands", len(f.rec.Commands)-n)
	}
}

func TestUpdate_PanCreatesAndRemovesEdges(t *testing.T) {
	f := newFixture(t, Options{Padding: 1})
	f.m.Update(view(0, 0))
	f.rec.Reset()

	d := f.m.Update(view(0, 1))
	wantCreated := []grid.CellIndex{{I: -1, J: 2}, {I: 0, J: 2}, {I: 1, J: 2}}
	wantRemoved := []grid.CellIndex{{I: -1, J: -1}, {I: 0, J: -1}, {I: 1, J: -1}}
	if diff := cmp.Diff(wantCreated, d.Created); diff != "" {
		t.Fatalf("created (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantRemoved, d.Removed); diff != "" {
		t.Fatalf("removed (-want +got):\n%s", diff)
	}
	if f.rec.Count(OpCreate) != 3 || f.rec.Count(OpRemove) != 3 {
		t.Fatalf("commands: %d create %d remove", f.rec.Count(OpCreate), f.rec.Count(OpRemove))
	}
	if f.m.Len() != 9 {
		t.Fatalf("active got %d want 9", f.m.Len())
	}
	for _, c := range wantRemoved {
		if f.m.IsActive(c) {
			t.Fatalf("%v still active", c)
		}
		if f.store.InOverlay(c) {
			t.Fatalf("%v still in memory without RetainOverlay", c)
		}
	}
}

func TestUpdate_RetainOverlayKeepsMemory(t *testing.T) {
	f := newFixture(t, Options{Padding: 0, RetainOverlay: true})
	f.m.Update(view(0, 0))
	f.m.Update(view(5, 5))
	if !f.store.InOverlay(grid.CellIndex{}) {
		t.Fatalf("RetainOverlay should keep the departed cell in memory")
	}
	if f.m.IsActive(grid.CellIndex{}) {
		t.Fatalf("departed cell still active")
	}
}

func TestUpdate_ReentryReproducesState(t *testing.T) {
	f := newFixture(t, Options{Padding: 0})
	c := grid.CellIndex{I: 0, J: 0}
	f.m.Update(view(0, 0))

	// Gameplay changed the cell while it was visible.
	if err := f.store.Commit(c, cellstore.WithToken(64)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	f.m.Update(view(10, 10))
	if f.store.InOverlay(c) {
		t.Fatalf("expected overlay entry dropped")
	}
	f.rec.Reset()
	f.m.Update(view(0, 0))

	if len(f.rec.Commands) < 1 || f.rec.Commands[0].Op != OpCreate {
		t.Fatalf("expected create on re-entry, got %+v", f.rec.Commands)
	}
	o := f.rec.Commands[0].Overlay
	if o.Label != "64" || o.Style.Fill != ColorForToken(64) {
		t.Fatalf("re-entered overlay got %+v", o)
	}
}

func TestUpdate_FlushesStateOnExit(t *testing.T) {
	f := newFixture(t, Options{Padding: 0})
	c := grid.CellIndex{I: 0, J: 0}
	f.m.Update(view(0, 0))
	// Overlay-only change; leaving the window must persist it.
	f.store.Set(c, cellstore.Empty())
	f.m.Update(view(3, 3))

	durable, err := f.store.Durable()
	if err != nil {
		t.Fatalf("durable: %v", err)
	}
	if durable["0,0"] != cellstore.Empty() {
		t.Fatalf("exit flush missing: %+v", durable["0,0"])
	}
}

type countingKV struct {
	*kvstore.Memory
	gets, puts int
}

func (c *countingKV) Get(key string) ([]byte, bool, error) {
	c.gets++
	return c.Memory.Get(key)
}

func (c *countingKV) Put(key string, value []byte) error {
	c.puts++
	return c.Memory.Put(key, value)
}

// A zoomed-in browser map shows about 1,600 cells; one Update must touch the kv store a
// constant number of times, not once per cell.
func TestUpdate_LargeWindowTouchesKVOncePerBatch(t *testing.T) {
	kv := &countingKV{Memory: kvstore.NewMemory()}
	store := cellstore.New(kv, cellstore.Options{})
	gen := worldgen.New(store, worldgen.Options{})
	m := NewManager(grid.NewMapper(grid.LatLng{}, 1), gen, store, Discard{}, Options{Padding: 0})

	wide := grid.Rect{South: 0.5, West: 0.5, North: 39.5, East: 39.5}
	start := time.Now()
	d := m.Update(wide)
	if len(d.Created) != 1600 {
		t.Fatalf("created got %d want 1600", len(d.Created))
	}
	if kv.gets != 1 || kv.puts != 1 {
		t.Fatalf("first update: %d gets %d puts, want 1 and 1", kv.gets, kv.puts)
	}

	// Pan ten tiles east: one write for the new cells, one for the departing ones.
	d = m.Update(grid.Rect{South: 0.5, West: 10.5, North: 39.5, East: 49.5})
	if len(d.Created) != 400 || len(d.Removed) != 400 {
		t.Fatalf("pan: created=%d removed=%d", len(d.Created), len(d.Removed))
	}
	if kv.gets != 1 || kv.puts != 3 {
		t.Fatalf("after pan: %d gets %d puts, want 1 and 3", kv.gets, kv.puts)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("two updates over 2,000 cells took %v", elapsed)
	}

	durable, err := store.Durable()
	if err != nil {
		t.Fatalf("durable: %v", err)
	}
	if len(durable) != 2000 {
		t.Fatalf("durable cells got %d want 2000", len(durable))
	}
}

func BenchmarkUpdate_Pan(b *testing.B) {
	store := cellstore.New(kvstore.NewMemory(), cellstore.Options{})
	gen := worldgen.New(store, worldgen.Options{})
	m := NewManager(grid.NewMapper(grid.LatLng{}, 1), gen, store, Discard{}, Options{Padding: 2})
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		j := float64(n % 64)
		m.Update(grid.Rect{South: 0.5, West: j + 0.5, North: 39.5, East: j + 39.5})
	}
}

func TestRepaintAndClear(t *testing.T) {
	f := newFixture(t, Options{Padding: 0})
	f.m.Update(view(0, 0))
	f.rec.Reset()

	if !f.m.Repaint(grid.CellIndex{}, cellstore.WithToken(8), true) {
		t.Fatalf("repaint of active cell reported inactive")
	}
	if f.m.Repaint(grid.CellIndex{I: 9, J: 9}, cellstore.WithToken(8), false) {
		t.Fatalf("repaint of inactive cell should be ignored")
	}
	if len(f.rec.Commands) != 1 {
		t.Fatalf("got %d commands want 1", len(f.rec.Commands))
	}
	cmd := f.rec.Commands[0]
	if cmd.Op != OpUpdate || cmd.Label != "8" || cmd.Style.FillOpacity != MergedOpacity {
		t.Fatalf("update command %+v", cmd)
	}

	f.rec.Reset()
	removed := f.m.Clear()
	if len(removed) != 1 || f.rec.Count(OpRemove) != 1 || f.m.Len() != 0 {
		t.Fatalf("clear removed %v, %d remove commands, %d active", removed, f.rec.Count(OpRemove), f.m.Len())
	}
}

func TestColorForToken(t *testing.T) {
	cases := map[int]string{
		0:    "#eeeeee",
		2:    "#f7d794",
		16:   "#ff6b6b",
		2048: "#2b9348",
		4096: "#2b9348",
		3:    UnknownFill,
	}
	for v, want := range cases {
		if got := ColorForToken(v); got != want {
			t.Fatalf("ColorForToken(%d) got %s want %s", v, got, want)
		}
	}
	if s := StyleFor(cellstore.Empty()); s.Fill != EmptyFill || s.FillOpacity != EmptyOpacity {
		t.Fatalf("empty style %+v", s)
	}
}
