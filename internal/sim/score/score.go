// Package score persists the actor's points as a single integer record.
package score

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"worldofbits.app/internal/persistence/kvstore"
	"worldofbits.app/internal/protocol"
)

const DefaultKey = "wob_points_v1"

type Store struct {
	kv     kvstore.KV
	key    string
	log    *zap.Logger
	points int
}

// Open reads the current total. A missing or unreadable record counts as 0.
func Open(kv kvstore.KV, key string, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{kv: kv, key: key, log: logger}
	s.points = s.load()
	return s
}

func (s *Store) Points() int { return s.points }

// Add increases the total by delta and writes it through. Only merges award points.
func (s *Store) Add(delta int) (int, error) {
	if delta < 0 {
		return s.points, fmt.Errorf("score: negative delta %d", delta)
	}
	if delta == 0 {
		return s.points, nil
	}
	s.points += delta
	return s.points, s.Flush()
}

func (s *Store) Flush() error {
	if err := s.kv.Put(s.key, []byte(strconv.Itoa(s.points))); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	return nil
}

// Set replaces the total, for snapshot import.
func (s *Store) Set(points int) error {
	if points < 0 {
		return fmt.Errorf("score: negative total %d", points)
	}
	s.points = points
	return s.Flush()
}

// Reset zeroes the total and erases the record.
func (s *Store) Reset() error {
	s.points = 0
	if err := s.kv.Delete(s.key); err != nil {
		return fmt.Errorf("clear points: %w", err)
	}
	return nil
}

func (s *Store) load() int {
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		s.log.Warn("read points", zap.Error(err))
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || n < 0 {
		s.log.Warn("points record corrupt; starting from 0",
			zap.String("key", s.key),
			zap.String("code", protocol.ErrStoreCorrupt),
			zap.ByteString("raw", raw))
		return 0
	}
	return n
}
