package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// hourFiles is the on-disk side of the interaction journal. Entries go to
// <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst, one file per UTC hour of the entry's
// wall clock, one JSON entry per line. Reopening an hour appends a new zstd
// frame, which ReadFile decodes as one stream.
//
// Every entry is flushed through to its zstd frame before append returns, so a
// crashed session loses at most the line being written and replay sees every
// interaction the actor was told about.
type hourFiles struct {
	dir    string
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	hour string
	f    *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer
}

func newHourFiles(dir, prefix string) *hourFiles {
	return &hourFiles{dir: dir, prefix: prefix, now: time.Now}
}

func (h *hourFiles) append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry %d: %w", e.Seq, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if hour := h.now().UTC().Format("2006-01-02-15"); hour != h.hour {
		if err := h.openLocked(hour); err != nil {
			return err
		}
	}
	line = append(line, '\n')
	if _, err := h.bw.Write(line); err != nil {
		return err
	}
	if err := h.bw.Flush(); err != nil {
		return err
	}
	return h.zw.Flush()
}

func (h *hourFiles) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeLocked()
}

func (h *hourFiles) openLocked(hour string) error {
	if err := h.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(h.dir, fmt.Sprintf("%s-%s.jsonl.zst", h.prefix, hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", path, err)
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		_ = f.Close()
		return err
	}
	h.f, h.zw, h.bw, h.hour = f, zw, bufio.NewWriter(zw), hour
	return nil
}

// closeLocked ends the current hour's frame. The frame error wins over the file error.
func (h *hourFiles) closeLocked() error {
	if h.f == nil {
		return nil
	}
	err := h.bw.Flush()
	if zerr := h.zw.Close(); err == nil {
		err = zerr
	}
	if ferr := h.f.Close(); err == nil {
		err = ferr
	}
	h.f, h.zw, h.bw, h.hour = nil, nil, nil, ""
	return err
}
