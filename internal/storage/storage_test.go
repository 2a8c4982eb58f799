package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for driver, path := range map[string]string{
		"file":   filepath.Join(dir, "state"),
		"sqlite": filepath.Join(dir, "state.db"),
	} {
		st, err := Open(Config{Driver: driver, Path: path, KeepDays: 2, JournalKeep: 3}, nilLogger)
		if err != nil {
			t.Fatalf("Open(%s): %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, nilLogger)
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = (%v, %v), want (nil, nil)", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, nilLogger); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, nilLogger); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestSnapshotsByDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.LoadSnapshot(ctx, "2025-06-01"); err != nil || ok {
				t.Fatalf("LoadSnapshot(empty) = (%v, %v)", ok, err)
			}
			if _, _, ok, err := st.LatestSnapshot(ctx); err != nil || ok {
				t.Fatalf("LatestSnapshot(empty) = (%v, %v)", ok, err)
			}

			for _, day := range []string{"2025-06-01", "2025-06-03", "2025-06-02"} {
				if err := st.SaveSnapshot(ctx, day, []byte(`{"day":"`+day+`"}`)); err != nil {
					t.Fatalf("SaveSnapshot(%s): %v", day, err)
				}
			}
			// Overwrite keeps one entry per day.
			if err := st.SaveSnapshot(ctx, "2025-06-03", []byte(`{"v":2}`)); err != nil {
				t.Fatal(err)
			}

			day, blob, ok, err := st.LatestSnapshot(ctx)
			if err != nil || !ok {
				t.Fatalf("LatestSnapshot = (%v, %v)", ok, err)
			}
			if day != "2025-06-03" || string(blob) != `{"v":2}` {
				t.Fatalf("LatestSnapshot = %s %s", day, blob)
			}

			// KeepDays=2 pruned the oldest.
			if _, ok, _ := st.LoadSnapshot(ctx, "2025-06-01"); ok {
				t.Fatal("2025-06-01 should have been pruned")
			}
			if b, ok, _ := st.LoadSnapshot(ctx, "2025-06-02"); !ok || string(b) != `{"day":"2025-06-02"}` {
				t.Fatalf("LoadSnapshot(2025-06-02) = %s %v", b, ok)
			}

			if err := st.SaveSnapshot(ctx, "June 1st", []byte(`{}`)); !errors.Is(err, ErrBadDay) {
				t.Fatalf("SaveSnapshot(bad day) err = %v, want ErrBadDay", err)
			}
		})
	}
}

func TestJournalKeepsNewest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"a", "b", "c", "d", "e"} {
				r := PublishRecord{At: base.Add(time.Duration(i) * time.Minute), EventID: id, Channels: []string{"discord"}}
				if err := st.AppendPublished(ctx, r); err != nil {
					t.Fatalf("AppendPublished(%s): %v", id, err)
				}
			}
			got, err := st.RecentPublished(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].EventID != "e" || got[1].EventID != "d" {
				t.Fatalf("RecentPublished(2) = %+v", got)
			}
			if got[0].Channels[0] != "discord" || !got[0].At.Equal(base.Add(4*time.Minute)) {
				t.Fatalf("record round trip = %+v", got[0])
			}
		})
	}
}

func TestFileJournalSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := Config{Driver: "file", Path: path, JournalKeep: 2}

	st, err := Open(cfg, nilLogger)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"x", "y", "z", "w"} {
		if err := st.AppendPublished(ctx, PublishRecord{EventID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	// Four lines hit 2*JournalKeep and compacted the file to the newest two.
	b, err := os.ReadFile(filepath.Join(filepath.Dir(path), "state.journal.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if n := countLines(b); n != 2 {
		t.Fatalf("journal lines = %d, want 2", n)
	}

	st, err = Open(cfg, nilLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, _ := st.RecentPublished(ctx, 0)
	if len(got) != 2 || got[0].EventID != "w" || got[1].EventID != "z" {
		t.Fatalf("RecentPublished after reopen = %+v", got)
	}
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
