// Package cellstore is the two-tier cell state cache: an in-memory overlay in front of a
// durable blob that maps "i,j" keys to CellState.
//
// Promotion: Get falls through to the durable blob on an overlay miss and copies the hit
// into the overlay. Eviction: callers Commit before Evict, so dropping an overlay entry
// never loses state; Evict itself does not touch the durable copy.
//
// The durable blob is decoded and validated once and then kept as a mirror. A Store
// assumes it is the only writer of its key while it is open.
package cellstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"worldofbits.app/internal/persistence/kvstore"
	"worldofbits.app/internal/protocol"
	"worldofbits.app/internal/sim/grid"
)

const DefaultKey = "wob_cellstore_v1"

var (
	// ErrStoreCorrupt marks a durable blob that cannot be parsed or fails validation.
	// The store recovers by treating the blob as empty.
	ErrStoreCorrupt = errors.New("cellstore: durable blob corrupt")
	ErrInvalidState = errors.New("cellstore: invalid cell state")
)

type Options struct {
	// Key is the durable key holding the blob. Defaults to DefaultKey.
	Key    string
	Logger *zap.Logger
}

type Store struct {
	kv     kvstore.KV
	key    string
	log    *zap.Logger
	schema *jsonschema.Schema

	overlay map[grid.CellIndex]CellState
	corrupt int

	// mirror is the decoded durable blob; nil until loaded and after a failed write.
	mirror map[string]CellState
}

func New(kv kvstore.KV, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		kv:      kv,
		key:     opts.Key,
		log:     opts.Logger,
		schema:  protocol.MustSchema(protocol.SchemaCellStore),
		overlay: map[grid.CellIndex]CellState{},
	}
}

// Get returns the overlay value, else the durable value (promoted into the overlay).
// ok=false is a plain miss; durable read problems are logged and also count as a miss.
func (s *Store) Get(idx grid.CellIndex) (CellState, bool) {
	if st, ok := s.overlay[idx]; ok {
		return st, true
	}
	blob, err := s.durable()
	if err != nil {
		s.noteReadErr(err)
		return CellState{}, false
	}
	st, ok := blob[idx.Key()]
	if !ok {
		return CellState{}, false
	}
	s.overlay[idx] = st
	return st, true
}

// Set writes the overlay only.
func (s *Store) Set(idx grid.CellIndex, st CellState) {
	s.overlay[idx] = st
}

// Commit writes the overlay and merges the key into the durable blob.
// The overlay write happens even when the durable write fails.
func (s *Store) Commit(idx grid.CellIndex, st CellState) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %s %+v", ErrInvalidState, idx, st)
	}
	s.overlay[idx] = st
	return s.mergeDurable(map[grid.CellIndex]CellState{idx: st})
}

// CommitBatch is Commit for many cells with a single read-merge-write.
func (s *Store) CommitBatch(states map[grid.CellIndex]CellState) error {
	if len(states) == 0 {
		return nil
	}
	for idx, st := range states {
		if !st.Valid() {
			return fmt.Errorf("%w: %s %+v", ErrInvalidState, idx, st)
		}
	}
	for idx, st := range states {
		s.overlay[idx] = st
	}
	return s.mergeDurable(states)
}

// Evict drops the overlay entry. The durable copy is left as is.
func (s *Store) Evict(idx grid.CellIndex) {
	delete(s.overlay, idx)
}

// FlushAll merges the whole overlay into the durable blob. Keys not in memory are kept.
func (s *Store) FlushAll() error {
	if len(s.overlay) == 0 {
		return nil
	}
	states := make(map[grid.CellIndex]CellState, len(s.overlay))
	for k, v := range s.overlay {
		states[k] = v
	}
	return s.mergeDurable(states)
}

// ClearAll drops the overlay and erases the durable blob. Irreversible.
func (s *Store) ClearAll() error {
	s.overlay = map[grid.CellIndex]CellState{}
	s.mirror = nil
	if err := s.kv.Delete(s.key); err != nil {
		return fmt.Errorf("clear cell store: %w", err)
	}
	s.mirror = map[string]CellState{}
	return nil
}

// Len is the number of overlay entries.
func (s *Store) Len() int { return len(s.overlay) }

// InOverlay reports whether idx is currently held in memory.
func (s *Store) InOverlay(idx grid.CellIndex) bool {
	_, ok := s.overlay[idx]
	return ok
}

// CorruptLoads counts durable reads that were discarded as corrupt.
func (s *Store) CorruptLoads() int { return s.corrupt }

// Durable re-reads the durable blob keyed by "i,j" from the kv store and reports
// corruption as ErrStoreCorrupt.
func (s *Store) Durable() (map[string]CellState, error) {
	return s.readBlob()
}

// ReplaceDurable overwrites the durable blob and drops the overlay.
func (s *Store) ReplaceDurable(cells map[string]CellState) error {
	for k, st := range cells {
		if _, err := grid.ParseKey(k); err != nil {
			return err
		}
		if !st.Valid() {
			return fmt.Errorf("%w: %s %+v", ErrInvalidState, k, st)
		}
	}
	s.overlay = map[grid.CellIndex]CellState{}
	s.mirror = make(map[string]CellState, len(cells))
	for k, st := range cells {
		s.mirror[k] = st
	}
	return s.writeBlob()
}

func (s *Store) mergeDurable(states map[grid.CellIndex]CellState) error {
	blob, err := s.durable()
	if err != nil {
		return fmt.Errorf("merge cell store: %w", err)
	}
	for idx, st := range states {
		blob[idx.Key()] = st
	}
	return s.writeBlob()
}

// durable returns the mirror, loading it on first use. A corrupt blob loads as empty
// and is counted once; a read error leaves the mirror unloaded.
func (s *Store) durable() (map[string]CellState, error) {
	if s.mirror != nil {
		return s.mirror, nil
	}
	blob, err := s.readBlob()
	if errors.Is(err, ErrStoreCorrupt) {
		s.noteReadErr(err)
		blob = map[string]CellState{}
	} else if err != nil {
		return nil, err
	}
	s.mirror = blob
	return blob, nil
}

func (s *Store) readBlob() (map[string]CellState, error) {
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("read cell store: %w", err)
	}
	if !ok {
		return map[string]CellState{}, nil
	}
	return s.decodeBlob(raw)
}

func (s *Store) decodeBlob(raw []byte) (map[string]CellState, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]CellState{}, nil
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	if err := s.schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	var blob map[string]CellState
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	for k, st := range blob {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: key %s holds %+v", ErrStoreCorrupt, k, st)
		}
	}
	return blob, nil
}

// writeBlob serializes the mirror. On failure the mirror is dropped so the next
// access reloads what the kv store actually holds.
func (s *Store) writeBlob() error {
	b, err := json.Marshal(s.mirror)
	if err == nil {
		err = s.kv.Put(s.key, b)
	}
	if err != nil {
		s.mirror = nil
		return fmt.Errorf("write cell store: %w", err)
	}
	return nil
}

func (s *Store) noteReadErr(err error) {
	if errors.Is(err, ErrStoreCorrupt) {
		s.corrupt++
		s.log.Warn("durable cell store corrupt; treating as empty",
			zap.String("key", s.key),
			zap.String("code", protocol.ErrStoreCorrupt),
			zap.Error(err))
		return
	}
	s.log.Warn("durable cell store read failed", zap.String("key", s.key), zap.Error(err))
}
