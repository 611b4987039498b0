// Package session owns the single actor's state and is the only entry point for input.
//
// A Session processes one event at a time in arrival order. It holds the hand, the
// points total, the actor position and the last viewport, and drives the viewport
// manager and the interaction engine on behalf of the caller. It is not safe for
// concurrent use.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"worldofbits.app/internal/persistence/journal"
	"worldofbits.app/internal/persistence/kvstore"
	"worldofbits.app/internal/persistence/snapshot"
	"worldofbits.app/internal/sim/cellstore"
	"worldofbits.app/internal/sim/grid"
	"worldofbits.app/internal/sim/interact"
	"worldofbits.app/internal/sim/score"
	"worldofbits.app/internal/sim/tuning"
	"worldofbits.app/internal/sim/viewport"
	"worldofbits.app/internal/sim/worldgen"
)

// Journal receives one entry per processed event. *journal.Writer satisfies it.
type Journal interface {
	Append(e journal.Entry) error
}

type Config struct {
	Tuning   tuning.Tuning
	KV       kvstore.KV
	Renderer viewport.Renderer
	Journal  Journal
	Logger   *zap.Logger

	// ID stamps journal entries and snapshots. Empty means a fresh uuid.
	ID  string
	Now func() time.Time

	// Generator overrides for tests and demos.
	ForceSpawn bool
	Luck       func(string) float64
}

type Session struct {
	id     string
	tune   tuning.Tuning
	mapper grid.Mapper
	log    *zap.Logger
	now    func() time.Time

	store  *cellstore.Store
	gen    *worldgen.Generator
	view   *viewport.Manager
	engine *interact.Engine
	points *score.Store

	hand     interact.Hand
	pos      grid.LatLng
	viewRect grid.Rect
	hasView  bool

	journal Journal
	seq     uint64
}

// Result is what Handle reports for one event.
type Result struct {
	Diff    viewport.Diff
	Outcome interact.Outcome
}

func New(cfg Config) (*Session, error) {
	if cfg.KV == nil {
		return nil, errors.New("session: nil durable store")
	}
	t := cfg.Tuning
	if t.TileDegrees <= 0 {
		return nil, errors.New("session: tuning has no tile size; use tuning.Defaults or tuning.Load")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger.With(zap.String("session", cfg.ID))

	mapper := grid.NewMapper(grid.LatLng{Lat: t.Origin.Lat, Lng: t.Origin.Lng}, t.TileDegrees)
	store := cellstore.New(cfg.KV, cellstore.Options{Key: t.Storage.CellStoreKey, Logger: log})
	gen := worldgen.New(store, worldgen.Options{
		SpawnProbability: t.SpawnProbability,
		ForceSpawn:       cfg.ForceSpawn,
		Luck:             cfg.Luck,
		Logger:           log,
	})
	s := &Session{
		id:     cfg.ID,
		tune:   t,
		mapper: mapper,
		log:    log,
		now:    cfg.Now,
		store:  store,
		gen:    gen,
		view: viewport.NewManager(mapper, gen, store, cfg.Renderer, viewport.Options{
			Padding:       t.Padding(),
			RetainOverlay: t.RetainOverlay,
			Logger:        log,
		}),
		engine:  interact.NewEngine(store, gen, mapper, interact.Options{RadiusMeters: t.PickupRadiusMeters, Logger: log}),
		points:  score.Open(cfg.KV, t.Storage.PointsKey, log),
		pos:     mapper.Origin,
		journal: cfg.Journal,
	}
	log.Info("session opened", zap.Int("points", s.points.Points()))
	return s, nil
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Mapper() grid.Mapper         { return s.mapper }
func (s *Session) Position() grid.LatLng       { return s.pos }
func (s *Session) Points() int                 { return s.points.Points() }
func (s *Session) Hand() (int, bool)           { return s.hand.Value() }
func (s *Session) Store() *cellstore.Store     { return s.store }
func (s *Session) View() *viewport.Manager     { return s.view }
func (s *Session) Viewport() (grid.Rect, bool) { return s.viewRect, s.hasView }

// Handle dispatches one input event.
func (s *Session) Handle(ev Event) (Result, error) {
	switch ev := ev.(type) {
	case PositionReported:
		return Result{}, s.ReportActorPosition(ev.Pos)
	case ViewportChanged:
		d, err := s.ReportViewport(ev.View)
		return Result{Diff: d}, err
	case InteractRequested:
		out, err := s.Interact(ev.Cell, ev.Action)
		return Result{Outcome: out}, err
	case MoveRequested:
		d, err := s.Step(ev.Dir, ev.Step)
		return Result{Diff: d}, err
	case TeleportRequested:
		d, err := s.Teleport(ev.Pos)
		return Result{Diff: d}, err
	case ResetRequested:
		d, err := s.ResetWorld()
		return Result{Diff: d}, err
	default:
		return Result{}, fmt.Errorf("%w: %T", errUnknownEvent, ev)
	}
}

// ReportActorPosition moves the actor. It never touches cell state.
func (s *Session) ReportActorPosition(p grid.LatLng) error {
	if !p.Valid() || !p.InRange() {
		return fmt.Errorf("%w: position %+v", ErrBadInput, p)
	}
	s.pos = p
	s.record(journal.Entry{Kind: journal.KindPosition, Pos: &p})
	return nil
}

// ReportViewport recomputes the active cell set for r. Views outside the globe or wider
// than the tuning's window cap are refused and leave the active set unchanged.
func (s *Session) ReportViewport(r grid.Rect) (viewport.Diff, error) {
	if !r.Valid() || !r.InRange() {
		return viewport.Diff{}, fmt.Errorf("%w: viewport %+v", ErrBadInput, r)
	}
	if w := s.mapper.WindowForViewport(r, s.tune.Padding()); !w.LenAtMost(s.tune.WindowCap()) {
		return viewport.Diff{}, fmt.Errorf("%w: viewport %+v covers more than %d cells", ErrBadInput, r, s.tune.WindowCap())
	}
	s.viewRect, s.hasView = r, true
	d := s.view.Update(r)
	s.record(journal.Entry{Kind: journal.KindViewport, Viewport: &r})
	return d, nil
}

// Interact runs pickup or place against the cell. Interaction errors carry a protocol
// code and an actor-facing message; state is unchanged when one is returned.
func (s *Session) Interact(idx grid.CellIndex, action Action) (interact.Outcome, error) {
	var (
		out interact.Outcome
		err error
	)
	switch action {
	case ActionPickup:
		out, err = s.engine.Pickup(&s.hand, idx, s.pos)
	case ActionPlace:
		out, err = s.engine.Place(&s.hand, idx, s.pos)
	default:
		return out, fmt.Errorf("%w: unknown action %q", ErrBadInput, action)
	}

	e := journal.Entry{Kind: journal.KindInteract, Action: string(action), Cell: idx.Key(), Code: interact.Code(err)}
	if st, ok := s.store.Get(idx); ok {
		e.State = &st
	}
	defer s.release(idx)
	if err != nil {
		s.log.Debug("interaction rejected", zap.Stringer("cell", idx), zap.String("action", string(action)), zap.String("code", e.Code))
		s.record(e)
		return out, err
	}

	s.view.Repaint(idx, out.State, out.Merged)
	if out.Points > 0 {
		if _, perr := s.points.Add(out.Points); perr != nil {
			s.log.Warn("persist points", zap.Error(perr))
		}
	}
	s.record(e)
	return out, nil
}

// CellView is the popup for one cell.
type CellView struct {
	Cell      grid.CellIndex      `json:"-"`
	Key       string              `json:"key"`
	State     cellstore.CellState `json:"state"`
	Token     string              `json:"token"`
	InReach   bool                `json:"in_reach"`
	CanPickup bool                `json:"can_pickup"`
	CanPlace  bool                `json:"can_place"`
}

// Inspect materializes the cell and reports what the actor could do with it.
// Reach is reported separately; the buttons ignore it and the engine enforces it.
func (s *Session) Inspect(idx grid.CellIndex) CellView {
	st := s.gen.Materialize(idx)
	defer s.release(idx)
	token := "none"
	if st.TokenPresent {
		token = st.Label()
	}
	return CellView{
		Cell:      idx,
		Key:       idx.Key(),
		State:     st,
		Token:     token,
		InReach:   s.engine.InReach(idx, s.pos),
		CanPickup: interact.CanPickup(&s.hand, st),
		CanPlace:  interact.CanPlace(&s.hand),
	}
}

// release drops the overlay entry of a cell touched outside the window. Its state is
// already durable: Materialize and the engine both commit.
func (s *Session) release(idx grid.CellIndex) {
	if !s.tune.RetainOverlay && !s.view.IsActive(idx) {
		s.store.Evict(idx)
	}
}

// Step moves the actor one step in dir. A non-positive step uses the configured one.
func (s *Session) Step(dir Direction, step float64) (viewport.Diff, error) {
	if step <= 0 {
		step = s.tune.StepDegrees
	}
	p := s.pos
	switch dir {
	case North:
		p.Lat += step
	case South:
		p.Lat -= step
	case East:
		p.Lng += step
	case West:
		p.Lng -= step
	default:
		return viewport.Diff{}, fmt.Errorf("%w: direction %q", ErrBadInput, dir)
	}
	return s.moveTo(p)
}

func (s *Session) Teleport(p grid.LatLng) (viewport.Diff, error) {
	return s.moveTo(p)
}

func (s *Session) moveTo(p grid.LatLng) (viewport.Diff, error) {
	if err := s.ReportActorPosition(p); err != nil {
		return viewport.Diff{}, err
	}
	if !s.tune.CentersOnPlayer() || !s.hasView {
		return viewport.Diff{}, nil
	}
	return s.ReportViewport(s.viewRect.Recenter(p))
}

// ResetWorld erases every cell and the points total, then repopulates the last viewport
// from scratch. The hand keeps its token. Irreversible.
func (s *Session) ResetWorld() (viewport.Diff, error) {
	removed := s.view.Clear()
	var errs []error
	if err := s.store.ClearAll(); err != nil {
		errs = append(errs, err)
	}
	if err := s.points.Reset(); err != nil {
		errs = append(errs, err)
	}
	s.log.Info("world reset", zap.Int("overlays_removed", len(removed)))

	var d viewport.Diff
	if s.hasView {
		d = s.view.Update(s.viewRect)
	}
	d.Removed = removed
	s.record(journal.Entry{Kind: journal.KindReset})
	return d, errors.Join(errs...)
}

// Export captures the durable world, after flushing memory into it.
func (s *Session) Export() (snapshot.SnapshotV1, error) {
	var snap snapshot.SnapshotV1
	if err := s.store.FlushAll(); err != nil {
		return snap, err
	}
	blob, err := s.store.Durable()
	if err != nil {
		return snap, err
	}
	cells, err := snapshot.FromBlob(blob)
	if err != nil {
		return snap, err
	}
	snap.Header = snapshot.Header{
		Version:     snapshot.Version,
		Session:     s.id,
		CreatedAt:   s.now().UTC().Format(time.RFC3339),
		Origin:      s.mapper.Origin,
		TileDegrees: s.mapper.TileDegrees,
	}
	snap.Points = s.points.Points()
	snap.Cells = cells
	return snap, nil
}

// Import replaces the durable world with snap and redraws the last viewport.
func (s *Session) Import(snap snapshot.SnapshotV1) (viewport.Diff, error) {
	if err := snap.Validate(); err != nil {
		return viewport.Diff{}, err
	}
	if err := snap.Compatible(s.mapper); err != nil {
		return viewport.Diff{}, err
	}
	removed := s.view.Clear()
	if err := s.store.ReplaceDurable(snap.Blob()); err != nil {
		return viewport.Diff{Removed: removed}, err
	}
	if err := s.points.Set(snap.Points); err != nil {
		return viewport.Diff{Removed: removed}, err
	}
	s.log.Info("world imported", zap.Int("cells", len(snap.Cells)), zap.Int("points", snap.Points))
	var d viewport.Diff
	if s.hasView {
		d = s.view.Update(s.viewRect)
	}
	d.Removed = removed
	return d, nil
}

// Close merges every in-memory cell into the durable store and flushes points.
// It does not close the store or the journal.
func (s *Session) Close() error {
	err := errors.Join(s.store.FlushAll(), s.points.Flush())
	s.log.Info("session closed", zap.Int("points", s.points.Points()), zap.Int("cells_in_memory", s.store.Len()), zap.Error(err))
	return err
}

func (s *Session) record(e journal.Entry) {
	if s.journal == nil {
		return
	}
	s.seq++
	e.TS = s.now().UTC().Format(time.RFC3339Nano)
	e.Session = s.id
	e.Seq = s.seq
	e.Hand, _ = s.hand.Value()
	e.Points = s.points.Points()
	if err := s.journal.Append(e); err != nil {
		s.log.Warn("journal append", zap.Uint64("seq", e.Seq), zap.Error(err))
	}
}
