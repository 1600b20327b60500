package checkpoint_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/tailored-agentic-units/varstate/checkpoint"
	"github.com/tailored-agentic-units/varstate/state"
	"github.com/tailored-agentic-units/varstate/variables"
)

func exampleSnapshot(t *testing.T) *state.Snapshot {
	t.Helper()
	ctx := context.Background()

	local, err := state.NewLocalState(variables.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("NewLocalState failed: %v", err)
	}
	if _, err := local.RegisterVariable(ctx, "temperature", variables.TypeFloat, 0.7, state.RegisterOptions{
		Constraints: variables.Constraints{"min": 0.0, "max": 2.0},
	}); err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}
	if err := local.SetVariable(ctx, "temperature", 0.9, nil); err != nil {
		t.Fatalf("SetVariable failed: %v", err)
	}

	snap, err := local.ExportState(ctx)
	if err != nil {
		t.Fatalf("ExportState failed: %v", err)
	}
	return snap
}

func testStore(t *testing.T, store checkpoint.Store) {
	t.Helper()

	snap := exampleSnapshot(t)
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(snap.SessionID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SessionID != snap.SessionID {
		t.Errorf("loaded SessionID = %q, want %q", loaded.SessionID, snap.SessionID)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("loaded snapshot invalid: %v", err)
	}

	id := loaded.Index["temperature"]
	v := loaded.Variables[id]
	if v == nil {
		t.Fatal("loaded snapshot missing temperature")
	}
	if v.Version != 1 {
		t.Errorf("loaded Version = %d, want 1", v.Version)
	}
	if got, ok := v.Value.(float64); !ok || got != 0.9 {
		t.Errorf("loaded Value = %v (%T), want 0.9", v.Value, v.Value)
	}
	if v.Constraints["max"] != 2.0 {
		t.Errorf("loaded Constraints = %v", v.Constraints)
	}

	ids, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !slices.Contains(ids, snap.SessionID) {
		t.Errorf("List() = %v, missing %q", ids, snap.SessionID)
	}

	if err := store.Delete(snap.SessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(snap.SessionID); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Errorf("Load after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(snap.SessionID); err != nil {
		t.Errorf("deleting a missing checkpoint should be a no-op, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, checkpoint.NewMemoryStore())
}

func TestMemoryStore_SaveCopies(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	snap := exampleSnapshot(t)

	if err := store.Save(snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// Mutating the caller's snapshot must not reach the stored copy.
	snap.Variables[snap.Index["temperature"]].Value = 1.5

	loaded, err := store.Load(snap.SessionID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := loaded.Variables[loaded.Index["temperature"]].Value; got != 0.9 {
		t.Errorf("stored snapshot mutated: value = %v, want 0.9", got)
	}
}

func TestBoltStore(t *testing.T) {
	store, err := checkpoint.NewBoltStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	defer store.Close()

	testStore(t, store)
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	snap := exampleSnapshot(t)

	store, err := checkpoint.NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := checkpoint.NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(snap.SessionID)
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if len(loaded.Variables) != 1 {
		t.Errorf("loaded %d variables, want 1", len(loaded.Variables))
	}
}

func TestStore_RejectsInvalidSnapshot(t *testing.T) {
	store := checkpoint.NewMemoryStore()

	err := store.Save(&state.Snapshot{
		SessionID: "sess",
		Variables: map[string]*variables.Variable{},
		Index:     map[string]string{"ghost": "missing"},
	})
	if !errors.Is(err, state.ErrInvalidExportFormat) {
		t.Errorf("Save invalid snapshot error = %v, want ErrInvalidExportFormat", err)
	}
}
