package kvstore

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func exerciseKV(t *testing.T, s KV) {
	t.Helper()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := s.Put("a", []byte(`{"0,0":{"tokenPresent":false}}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := s.Get("a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"0,0":{"tokenPresent":false}}` {
		t.Fatalf("get got %q", v)
	}
	if err := s.Put("a", []byte("2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, _, _ = s.Get("a")
	if string(v) != "2" {
		t.Fatalf("overwrite got %q", v)
	}
	if err := s.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get("a"); ok {
		t.Fatalf("expected key gone after delete")
	}
	if err := s.Delete("never-there"); err != nil {
		t.Fatalf("delete absent key: %v", err)
	}
}

func TestMemory_Basics(t *testing.T) {
	s := NewMemory()
	exerciseKV(t, s)
}

func TestMemory_CopiesValues(t *testing.T) {
	s := NewMemory()
	buf := []byte("abc")
	_ = s.Put("k", buf)
	buf[0] = 'z'
	v, _, _ := s.Get("k")
	if string(v) != "abc" {
		t.Fatalf("store aliased caller buffer: %q", v)
	}
	v[1] = 'z'
	v2, _, _ := s.Get("k")
	if string(v2) != "abc" {
		t.Fatalf("store aliased returned buffer: %q", v2)
	}
}

func TestMemory_ReopenKeepsContents(t *testing.T) {
	s := NewMemory()
	_ = s.Put("k", []byte("v"))
	_ = s.Close()
	if _, _, err := s.Get("k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	r := s.Reopen()
	v, ok, err := r.Get("k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("reopen: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestSQLite_Basics(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "wob.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	exerciseKV(t, s)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wob.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put("wob_points_v1", []byte("12")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("wob_cellstore_v1", []byte("{}")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Put("x", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("put after close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, ok, err := s2.Get("wob_points_v1")
	if err != nil || !ok || string(v) != "12" {
		t.Fatalf("after reopen: v=%q ok=%v err=%v", v, ok, err)
	}
	keys, err := s2.Keys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "wob_cellstore_v1" || keys[1] != "wob_points_v1" {
		t.Fatalf("keys got %v", keys)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
