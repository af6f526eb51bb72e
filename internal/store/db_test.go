package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

// Helper function to create an in-memory store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	if err := store.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return store
}

func sampleRun(started time.Time) *Run {
	return &Run{
		StartedAt:    started,
		FinishedAt:   started.Add(3 * time.Minute),
		MarkerKnown:  true,
		MarkerOffset: 4096,
		Changed:      []string{"glibc", "linux", "firefox"},
		Critical:     []string{"glibc", "linux"},
		Steps: []RunStep{
			{
				SourceID:   "pacman",
				Title:      "Pacman update",
				Command:    "sudo pacman -Syu",
				StartedAt:  started,
				FinishedAt: started.Add(2 * time.Minute),
			},
			{
				SourceID:   "aur",
				Title:      "AUR update",
				Command:    "yay -Sua",
				ExitCode:   1,
				StartedAt:  started.Add(2 * time.Minute),
				FinishedAt: started.Add(3 * time.Minute),
			},
			{
				SourceID: "flatpak",
				Title:    "Flatpak update",
				Command:  "flatpak update -y --noninteractive",
				Skipped:  true,
			},
		},
		Pending: []Pending{
			{SourceID: "pacman", Label: "Pacman", Count: 0},
			{SourceID: "aur", Label: "AUR", Count: 2},
			{SourceID: "flatpak", Label: "Flatpak", Error: "flatpak: executable file not found"},
		},
	}
}

func TestNew(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store.db should not be nil")
	}
}

func TestCreateSchema(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	tables := []string{"runs", "run_steps", "run_pending"}
	for _, table := range tables {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	// Running it twice must be harmless.
	if err := store.CreateSchema(); err != nil {
		t.Errorf("second CreateSchema() failed: %v", err)
	}
}

func TestInsertAndGetRun(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	run := sampleRun(started)

	id, err := store.InsertRun(ctx, run)
	if err != nil {
		t.Fatalf("InsertRun() failed: %v", err)
	}
	if id == 0 || run.ID != id {
		t.Fatalf("InsertRun() id = %d, run.ID = %d", id, run.ID)
	}

	got, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}

	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if !got.FinishedAt.Equal(started.Add(3 * time.Minute)) {
		t.Errorf("FinishedAt = %v", got.FinishedAt)
	}
	if !got.MarkerKnown || got.MarkerOffset != 4096 {
		t.Errorf("marker = %v/%d, want known/4096", got.MarkerKnown, got.MarkerOffset)
	}
	if !reflect.DeepEqual(got.Changed, run.Changed) {
		t.Errorf("Changed = %v, want %v", got.Changed, run.Changed)
	}
	if !reflect.DeepEqual(got.Critical, run.Critical) {
		t.Errorf("Critical = %v, want %v", got.Critical, run.Critical)
	}

	if len(got.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(got.Steps))
	}
	for i, want := range []string{"pacman", "aur", "flatpak"} {
		if got.Steps[i].SourceID != want || got.Steps[i].Position != i {
			t.Errorf("Steps[%d] = %s@%d, want %s@%d", i, got.Steps[i].SourceID, got.Steps[i].Position, want, i)
		}
	}
	if got.Steps[1].ExitCode != 1 {
		t.Errorf("Steps[1].ExitCode = %d, want 1", got.Steps[1].ExitCode)
	}
	if !got.Steps[2].Skipped || !got.Steps[2].StartedAt.IsZero() {
		t.Errorf("Steps[2] should be skipped with no start time, got %+v", got.Steps[2])
	}
	if got.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", got.Failed())
	}

	if !reflect.DeepEqual(got.Pending, run.Pending) {
		t.Errorf("Pending = %+v, want %+v", got.Pending, run.Pending)
	}
}

func TestInsertRun_UnknownMarkerAndEmptyLists(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	id, err := store.InsertRun(ctx, &Run{StartedAt: now, FinishedAt: now, Aborted: true})
	if err != nil {
		t.Fatalf("InsertRun() failed: %v", err)
	}

	got, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.MarkerKnown {
		t.Error("MarkerKnown should be false")
	}
	if !got.Aborted {
		t.Error("Aborted should be true")
	}
	if len(got.Changed) != 0 || len(got.Critical) != 0 || len(got.Steps) != 0 {
		t.Errorf("expected empty run, got %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetRun(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
}

func TestGetRun_NoSchema(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer store.Close()

	_, err = store.GetRun(context.Background(), 1)
	if err == nil {
		t.Fatal("GetRun() should fail on an uninitialized database")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("a missing table is not a missing run")
	}
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := store.InsertRun(ctx, sampleRun(base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("InsertRun() failed: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) || !runs[1].StartedAt.After(runs[2].StartedAt) {
		t.Error("runs should be newest first")
	}
	if len(runs[0].Steps) != 3 {
		t.Errorf("len(runs[0].Steps) = %d, want 3", len(runs[0].Steps))
	}

	limited, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}
}

func TestPruneRuns(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var newest int64
	for i := 0; i < 5; i++ {
		id, err := store.InsertRun(ctx, sampleRun(base.Add(time.Duration(i)*time.Hour)))
		if err != nil {
			t.Fatalf("InsertRun() failed: %v", err)
		}
		newest = id
	}

	n, err := store.PruneRuns(ctx, 2)
	if err != nil {
		t.Fatalf("PruneRuns() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("PruneRuns() removed %d, want 3", n)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != newest {
		t.Errorf("unexpected runs after prune: %d runs, newest id %d", len(runs), runs[0].ID)
	}

	// Steps of pruned runs go with them.
	var steps int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM run_steps").Scan(&steps); err != nil {
		t.Fatalf("count steps: %v", err)
	}
	if steps != 6 {
		t.Errorf("run_steps rows = %d, want 6", steps)
	}

	if n, err := store.PruneRuns(ctx, 0); err != nil || n != 0 {
		t.Errorf("PruneRuns(0) = %d, %v; want 0, nil", n, err)
	}
}

func TestOpen(t *testing.T) {
	path := t.TempDir() + "/history.db"
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	if _, err := store.ListRuns(context.Background(), 0); err != nil {
		t.Errorf("ListRuns() on fresh database failed: %v", err)
	}
}
