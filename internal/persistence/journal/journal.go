// Package journal records every actor input and its outcome so a session can be replayed.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"worldofbits.app/internal/sim/cellstore"
	"worldofbits.app/internal/sim/grid"
)

const Prefix = "interactions"

type Kind string

const (
	KindPosition Kind = "position"
	KindViewport Kind = "viewport"
	KindInteract Kind = "interact"
	KindReset    Kind = "reset"
)

type Entry struct {
	TS       string               `json:"ts"`
	Session  string               `json:"session"`
	Seq      uint64               `json:"seq"`
	Kind     Kind                 `json:"kind"`
	Action   string               `json:"action,omitempty"`
	Cell     string               `json:"cell,omitempty"`
	Pos      *grid.LatLng         `json:"pos,omitempty"`
	Viewport *grid.Rect           `json:"viewport,omitempty"`
	Code     string               `json:"code,omitempty"`
	State    *cellstore.CellState `json:"state,omitempty"`
	Hand     int                  `json:"hand"`
	Points   int                  `json:"points"`
}

// Writer appends entries to <dir>/interactions-*.jsonl.zst.
type Writer struct{ w *hourFiles }

func NewWriter(dir string) *Writer {
	return &Writer{w: newHourFiles(dir, Prefix)}
}

func (j *Writer) Append(e Entry) error { return j.w.append(e) }
func (j *Writer) Close() error         { return j.w.close() }

// ListFiles returns journal files in dir in chronological (name) order.
func ListFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, Prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadFile decodes every entry in one journal file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Entry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return out, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// ReadDir decodes every journal file in dir, oldest first.
func ReadDir(dir string) ([]Entry, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, p := range files {
		es, err := ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, es...)
	}
	return out, nil
}
