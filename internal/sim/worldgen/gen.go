package worldgen

import (
	"go.uber.org/zap"

	"worldofbits.app/internal/sim/cellstore"
	"worldofbits.app/internal/sim/grid"
	"worldofbits.app/internal/sim/logic/mathx"
)

const (
	DefaultSpawnProbability = 0.1

	// Salts for the two independent per-cell rolls.
	SaltSpawn = "initialValue"
	SaltValue = "value"

	// Spawned tokens are 2^e for e in [1, maxExponent].
	maxExponent = 4
)

type Options struct {
	SpawnProbability float64
	// ForceSpawn spawns a token in every fresh cell. Test and demo worlds only.
	ForceSpawn bool
	// Luck overrides the hash used for rolls. Nil means mathx.Luck.
	Luck   func(key string) float64
	Logger *zap.Logger
}

// Generator makes the permanent first-time decision for a cell.
type Generator struct {
	store *cellstore.Store
	prob  float64
	force bool
	luck  func(string) float64
	log   *zap.Logger
}

func New(store *cellstore.Store, opts Options) *Generator {
	if opts.SpawnProbability <= 0 {
		opts.SpawnProbability = DefaultSpawnProbability
	}
	if opts.Luck == nil {
		opts.Luck = mathx.Luck
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Generator{
		store: store,
		prob:  opts.SpawnProbability,
		force: opts.ForceSpawn,
		luck:  opts.Luck,
		log:   opts.Logger,
	}
}

// Roll is the default state for idx, computed from coordinates alone.
func (g *Generator) Roll(idx grid.CellIndex) cellstore.CellState {
	spawn := g.force || g.luck(mathx.SaltedKey(idx.I, idx.J, SaltSpawn)) < g.prob
	if !spawn {
		return cellstore.Empty()
	}
	e := int(g.luck(mathx.SaltedKey(idx.I, idx.J, SaltValue))*maxExponent) + 1
	return cellstore.WithToken(1 << e)
}

// Materialize returns the existing state for idx, or rolls and commits a new one.
// A decided cell is never rolled again. A failed durable write is logged; the
// decision still holds in memory.
func (g *Generator) Materialize(idx grid.CellIndex) cellstore.CellState {
	if st, ok := g.store.Get(idx); ok {
		return st
	}
	st := g.Roll(idx)
	if err := g.store.Commit(idx, st); err != nil {
		g.log.Warn("persist materialized cell", zap.Stringer("cell", idx), zap.Error(err))
	}
	g.log.Debug("materialized cell", zap.Stringer("cell", idx), zap.Bool("token", st.TokenPresent), zap.Int("value", st.TokenValue))
	return st
}

// MaterializeAll is Materialize for many cells with a single durable write for the
// fresh decisions. States are returned in the order of cells.
func (g *Generator) MaterializeAll(cells []grid.CellIndex) []cellstore.CellState {
	out := make([]cellstore.CellState, len(cells))
	fresh := map[grid.CellIndex]cellstore.CellState{}
	for n, idx := range cells {
		if st, ok := g.store.Get(idx); ok {
			out[n] = st
			continue
		}
		if st, ok := fresh[idx]; ok {
			out[n] = st
			continue
		}
		st := g.Roll(idx)
		fresh[idx] = st
		out[n] = st
	}
	if err := g.store.CommitBatch(fresh); err != nil {
		g.log.Warn("persist materialized cells", zap.Int("cells", len(fresh)), zap.Error(err))
	}
	if len(fresh) > 0 {
		g.log.Debug("materialized cells", zap.Int("fresh", len(fresh)), zap.Int("requested", len(cells)))
	}
	return out
}
