package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"worldofbits.app/internal/protocol"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestSchemas_CellStore(t *testing.T) {
	s, err := protocol.Schema(protocol.SchemaCellStore)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	valid := []string{
		`{}`,
		`{"0,0":{"tokenPresent":true,"tokenValue":2}}`,
		`{"-3,12":{"tokenPresent":false},"4,-1":{"tokenPresent":true,"tokenValue":2048}}`,
	}
	for _, raw := range valid {
		if err := s.Validate(decode(t, raw)); err != nil {
			t.Fatalf("expected valid %s: %v", raw, err)
		}
	}

	invalid := []string{
		`[]`,
		`{"0,0":{"tokenPresent":true}}`,
		`{"0,0":{"tokenPresent":false,"tokenValue":4}}`,
		`{"0,0":{"tokenPresent":true,"tokenValue":1}}`,
		`{"0,0":{"tokenPresent":true,"tokenValue":2.5}}`,
		`{"zero":{"tokenPresent":false}}`,
		`{"0,0":{"tokenPresent":false,"extra":1}}`,
		`{"0,0":"nope"}`,
	}
	for _, raw := range invalid {
		err := s.Validate(decode(t, raw))
		if err == nil {
			t.Fatalf("expected invalid %s", raw)
		}
		if _, ok := err.(*jsonschema.ValidationError); !ok {
			t.Fatalf("expected *jsonschema.ValidationError, got %T", err)
		}
	}
}

func TestSchemas_JournalEntry(t *testing.T) {
	s := protocol.MustSchema(protocol.SchemaJournalEntry)

	sample := decode(t, `{
	  "ts":"2026-10-16T12:00:00Z",
	  "session":"6f1c1d8e-2f1a-4bd4-9d8b-2b7cf1f2a001",
	  "seq":3,
	  "kind":"interact",
	  "action":"place",
	  "cell":"0,1",
	  "pos":{"lat":36.99798,"lng":-122.05698},
	  "code":"",
	  "state":{"tokenPresent":true,"tokenValue":4},
	  "hand":0,
	  "points":4
	}`)
	if err := s.Validate(sample); err != nil {
		t.Fatalf("validate: %v", err)
	}

	bad := decode(t, `{"ts":"x","session":"s","seq":1,"kind":"teleport"}`)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("expected unknown kind rejected")
	}
}

func TestSchema_CachedAndUnknown(t *testing.T) {
	a, err := protocol.Schema(protocol.SchemaCellStore)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	b, _ := protocol.Schema(protocol.SchemaCellStore)
	if a != b {
		t.Fatalf("expected cached schema instance")
	}
	if _, err := protocol.Schema("missing.schema.json"); err == nil {
		t.Fatalf("expected error for missing schema")
	}
}
