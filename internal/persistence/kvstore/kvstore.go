// Package kvstore holds the durable key/blob backends behind the cell store.
// A backend behaves like browser local storage: whole values are read and written by key.
package kvstore

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("kvstore: closed")

type KV interface {
	// Get returns ok=false when the key is absent.
	Get(key string) (value []byte, ok bool, err error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Memory is an in-process KV. Values are copied on the way in and out.
type Memory struct {
	mu     sync.Mutex
	m      map[string][]byte
	closed bool
}

func NewMemory() *Memory {
	return &Memory{m: map[string][]byte{}}
}

func (s *Memory) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Memory) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *Memory) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.m, key)
	return nil
}

// Close marks the store closed. Contents are kept so tests can reopen via Reopen.
func (s *Memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reopen returns a fresh handle over the same contents, simulating a process restart.
func (s *Memory) Reopen() *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string][]byte, len(s.m))
	for k, v := range s.m {
		m[k] = append([]byte(nil), v...)
	}
	return &Memory{m: m}
}
