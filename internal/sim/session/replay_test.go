package session

import (
	"testing"

	"go.uber.org/goleak"

	"worldofbits.app/internal/persistence/journal"
	"worldofbits.app/internal/persistence/kvstore"
	"worldofbits.app/internal/sim/grid"
	"worldofbits.app/internal/sim/tuning"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// play runs a session covering every outcome code.
func play(t *testing.T, s *Session) {
	t.Helper()
	_, _ = s.ReportViewport(viewAround(s.Mapper(), cell(0, 0)))
	mustInteract(t, s, cell(0, 0), ActionPickup)
	_, _ = s.Interact(cell(0, 1), ActionPickup) // hand occupied
	_, _ = s.Interact(cell(0, 2), ActionPlace)  // mismatch
	mustInteract(t, s, cell(0, 1), ActionPlace)
	_, _ = s.Interact(cell(0, 0), ActionPickup) // no token
	_, _ = s.Interact(cell(0, 0), ActionPlace)  // hand empty
	_, _ = s.Step(East, 0)
	_, _ = s.Interact(cell(0, 1), ActionPickup) // too far
	_, _ = s.Teleport(s.Mapper().Origin)
	mustInteract(t, s, cell(0, 1), ActionPickup)
	_, _ = s.ResetWorld()
	mustInteract(t, s, cell(0, 2), ActionPlace)
}

func replayConfig() Config {
	return Config{Tuning: tuning.Defaults(), KV: kvstore.NewMemory(), ForceSpawn: true, Luck: luck}
}

func TestReplay_ReproducesJournal(t *testing.T) {
	j := &memJournal{}
	s := newTestSession(t, Config{Journal: j, ID: "rec"})
	play(t, s)
	if s.Points() != 8 {
		t.Fatalf("recorded points got %d want 8", s.Points())
	}

	rep, err := Replay(j.entries, replayConfig())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !rep.OK() {
		t.Fatalf("mismatches: %v", rep.Mismatches)
	}
	if rep.Sessions != 1 || rep.Entries != len(j.entries) || rep.Points != 8 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestReplay_ReportsTampering(t *testing.T) {
	j := &memJournal{}
	s := newTestSession(t, Config{Journal: j, ID: "rec"})
	play(t, s)

	entries := append([]journal.Entry(nil), j.entries...)
	var tampered uint64
	for i := range entries {
		if entries[i].Kind == journal.KindInteract && entries[i].Code != "" {
			entries[i].Code = ""
			tampered = entries[i].Seq
			break
		}
	}
	rep, err := Replay(entries, replayConfig())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(rep.Mismatches) != 1 {
		t.Fatalf("mismatches got %v want exactly one", rep.Mismatches)
	}
	if m := rep.Mismatches[0]; m.Seq != tampered || m.Field != "code" || m.Want != "ok" {
		t.Fatalf("mismatch: %s", m)
	}
}

func TestReplay_AcrossReload(t *testing.T) {
	kv := kvstore.NewMemory()
	j := &memJournal{}

	s1 := newTestSession(t, Config{KV: kv, Journal: j, ID: "first"})
	mustInteract(t, s1, cell(0, 0), ActionPickup)
	mustInteract(t, s1, cell(0, 1), ActionPlace)
	mustInteract(t, s1, cell(1, 0), ActionPickup)
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := newTestSession(t, Config{KV: kv.Reopen(), Journal: j, ID: "second"})
	mustInteract(t, s2, cell(0, 1), ActionPickup)
	mustInteract(t, s2, cell(1, 0), ActionPlace)
	if hand, _ := s2.Hand(); hand != 0 {
		t.Fatalf("hand got %d", hand)
	}

	rep, err := Replay(j.entries, replayConfig())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !rep.OK() || rep.Sessions != 2 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestReplay_FromJournalFiles(t *testing.T) {
	dir := t.TempDir()
	w := journal.NewWriter(dir)
	s := newTestSession(t, Config{Journal: w, ID: "disk"})
	play(t, s)
	if err := w.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	entries, err := journal.ReadDir(dir)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if files, _ := journal.ListFiles(dir); len(files) == 0 {
		t.Fatalf("no journal files in %s", dir)
	}
	rep, err := Replay(entries, replayConfig())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !rep.OK() || rep.Entries != len(entries) {
		t.Fatalf("report: %+v", rep)
	}
}

func TestReplay_RejectsMalformedEntries(t *testing.T) {
	cases := []journal.Entry{
		{Session: "x", Seq: 1, Kind: journal.KindPosition},
		{Session: "x", Seq: 1, Kind: journal.KindViewport},
		{Session: "x", Seq: 1, Kind: journal.KindInteract, Cell: "nope", Action: "pickup"},
		{Session: "x", Seq: 1, Kind: journal.KindInteract, Cell: "0,0", Action: "kick"},
		{Session: "x", Seq: 1, Kind: "teleport", Pos: &grid.LatLng{}},
	}
	for _, e := range cases {
		if _, err := Replay([]journal.Entry{e}, replayConfig()); err == nil {
			t.Fatalf("expected error for %+v", e)
		}
	}
}
