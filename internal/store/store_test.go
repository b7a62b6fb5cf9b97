package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nightwatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertCurrent_Upserts(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertCurrent(ctx, "weather", map[string]any{"safe": false}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertCurrent(ctx, "weather", map[string]any{"safe": true}); err != nil {
		t.Fatal(err)
	}

	payload, at, err := s.GetCurrent(ctx, "weather")
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Safe bool `json:"safe"`
	}
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !got.Safe {
		t.Error("second insert did not replace the first")
	}
	if time.Since(at) > time.Minute {
		t.Errorf("recorded_at %v is not recent", at)
	}
}

func TestGetCurrent_MissingCollection(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, _, err := s.GetCurrent(context.Background(), "power")
	if !errors.Is(err, ErrNoRecord) {
		t.Errorf("got %v, want ErrNoRecord", err)
	}
}

func TestInsertCurrent_CollectionsIndependent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertCurrent(ctx, "weather", map[string]any{"safe": true}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertCurrent(ctx, "power", map[string]any{"main": true}); err != nil {
		t.Fatal(err)
	}

	payload, _, err := s.GetCurrent(ctx, "power")
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Main bool `json:"main"`
	}
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Main {
		t.Error("power collection overwritten by weather insert")
	}
}

func TestLogTransition_RecentOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	steps := [][2]string{
		{"sleeping", "ready"},
		{"ready", "scheduling"},
		{"scheduling", "slewing"},
	}
	for _, st := range steps {
		if err := s.LogTransition(ctx, st[0], st[1]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentTransitions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transitions, want 2", len(got))
	}
	if got[0].To != "slewing" || got[1].To != "scheduling" {
		t.Errorf("transitions not newest first: %+v", got)
	}
}

func TestLogObservation_Count(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.LogObservation(ctx, "M42_20260830T040000", "M42", map[string]any{"exp": i})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := s.LogObservation(ctx, "Wasp33_20260830T050000", "Wasp33", nil); err != nil {
		t.Fatal(err)
	}

	n, err := s.ObservationCount(ctx, "M42_20260830T040000")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("got %d records, want 3", n)
	}
}

func TestPrune_RemovesOldHistoryOnly(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.LogTransition(ctx, "sleeping", "ready"); err != nil {
		t.Fatal(err)
	}
	if err := s.LogObservation(ctx, "seq-1", "M 42", map[string]any{"exp": 1}); err != nil {
		t.Fatal(err)
	}

	// Everything just written is newer than a cutoff in the past.
	n, err := s.Prune(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("pruned %d rows with a past cutoff, want 0", n)
	}

	// A future cutoff sweeps both tables.
	n, err = s.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}

	trs, err := s.RecentTransitions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(trs) != 0 {
		t.Errorf("transitions survived prune: %v", trs)
	}
	count, err := s.ObservationCount(ctx, "seq-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("observations survived prune: %d", count)
	}
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nightwatch.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertCurrent(ctx, "safety", map[string]any{"safe": true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Schema creation is idempotent and data survives reopen.
	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, _, err := s2.GetCurrent(ctx, "safety"); err != nil {
		t.Errorf("reopened store lost data: %v", err)
	}
}
