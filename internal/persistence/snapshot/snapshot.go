// Package snapshot exports and imports the durable world: every persisted cell plus points.
// The file is a zstd stream holding a JSON header line followed by a gob body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"worldofbits.app/internal/sim/cellstore"
	"worldofbits.app/internal/sim/grid"
)

const Version = 1

type Header struct {
	Version     int         `json:"version"`
	Session     string      `json:"session,omitempty"`
	CreatedAt   string      `json:"created_at"`
	Origin      grid.LatLng `json:"origin"`
	TileDegrees float64     `json:"tile_degrees"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Points int      `json:"points"`
	Cells  []CellV1 `json:"cells"`
}

type CellV1 struct {
	I            int  `json:"i"`
	J            int  `json:"j"`
	TokenPresent bool `json:"token_present"`
	TokenValue   int  `json:"token_value,omitempty"`
}

// FromBlob converts a durable blob into sorted snapshot cells.
func FromBlob(blob map[string]cellstore.CellState) ([]CellV1, error) {
	out := make([]CellV1, 0, len(blob))
	for k, st := range blob {
		c, err := grid.ParseKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, CellV1{I: c.I, J: c.J, TokenPresent: st.TokenPresent, TokenValue: st.TokenValue})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].I != out[b].I {
			return out[a].I < out[b].I
		}
		return out[a].J < out[b].J
	})
	return out, nil
}

// Blob converts snapshot cells back into a durable blob.
func (s SnapshotV1) Blob() map[string]cellstore.CellState {
	out := make(map[string]cellstore.CellState, len(s.Cells))
	for _, c := range s.Cells {
		out[grid.CellIndex{I: c.I, J: c.J}.Key()] = cellstore.CellState{TokenPresent: c.TokenPresent, TokenValue: c.TokenValue}
	}
	return out
}

// Compatible reports whether the snapshot's cell indices mean the same places under m.
func (s SnapshotV1) Compatible(m grid.Mapper) error {
	if s.Header.Origin != m.Origin || s.Header.TileDegrees != m.TileDegrees {
		return fmt.Errorf("snapshot grid origin=%+v tile=%v does not match world origin=%+v tile=%v",
			s.Header.Origin, s.Header.TileDegrees, m.Origin, m.TileDegrees)
	}
	return nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for humans and tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, snap.Validate()
}

// Validate checks everything an import writes, so a bad snapshot is refused before any write.
func (s SnapshotV1) Validate() error {
	if s.Header.Version != Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	if s.Points < 0 {
		return fmt.Errorf("snapshot points %d < 0", s.Points)
	}
	for _, c := range s.Cells {
		st := cellstore.CellState{TokenPresent: c.TokenPresent, TokenValue: c.TokenValue}
		if !st.Valid() {
			return fmt.Errorf("snapshot cell %d,%d holds invalid state %+v", c.I, c.J, st)
		}
	}
	return nil
}
