package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/org/certledger/internal/eventlog"
	"github.com/org/certledger/internal/storage"
	"github.com/org/certledger/pkg/models"
)

const (
	ownerAddr = "0x0000000000000000000000000000000000000001"
	otherAddr = "0x0000000000000000000000000000000000000002"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.InitLedger(context.Background(), ownerAddr, time.Now().UTC()); err != nil {
		t.Fatalf("init ledger: %v", err)
	}
	return New(store, eventlog.NewRecorder(store))
}

func TestAddFactoryVersionAppends(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	fv, err := r.AddFactoryVersion(ctx, ownerAddr, models.FamilyPublic, "factory-public-v1")
	if err != nil {
		t.Fatalf("add factory version: %v", err)
	}
	if fv.Index != 0 {
		t.Errorf("first version should have index 0, got %d", fv.Index)
	}
	fv2, err := r.AddFactoryVersion(ctx, ownerAddr, models.FamilyPublic, "factory-public-v2")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if fv2.Index != 1 {
		t.Errorf("second version should have index 1, got %d", fv2.Index)
	}

	// Appending does not move the current pointer.
	cur, err := r.GetCurrent(ctx, models.FamilyPublic)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if cur.Index != 0 {
		t.Errorf("current should still be index 0, got %d", cur.Index)
	}
}

func TestAddFactoryVersionAuthorization(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.AddFactoryVersion(ctx, otherAddr, models.FamilyPublic, "f"); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("non-owner add: got %v, want ErrUnauthorized", err)
	}
	if _, err := r.AddFactoryVersion(ctx, ownerAddr, models.Family("mystery"), "f"); !errors.Is(err, models.ErrUnknownFamily) {
		t.Errorf("unknown family: got %v, want ErrUnknownFamily", err)
	}
}

func TestSetCurrentVersion(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	r.AddFactoryVersion(ctx, ownerAddr, models.FamilyPrivate, "v1") //nolint:errcheck
	r.AddFactoryVersion(ctx, ownerAddr, models.FamilyPrivate, "v2") //nolint:errcheck

	if err := r.SetCurrentVersion(ctx, ownerAddr, models.FamilyPrivate, 1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	cur, _ := r.GetCurrent(ctx, models.FamilyPrivate)
	if cur.FactoryID != "v2" {
		t.Errorf("expected current factory v2, got %s", cur.FactoryID)
	}

	// Only 2 versions registered: index 5 is out of range.
	if err := r.SetCurrentVersion(ctx, ownerAddr, models.FamilyPrivate, 5); !errors.Is(err, models.ErrIndexOutOfRange) {
		t.Errorf("index 5: got %v, want ErrIndexOutOfRange", err)
	}
	if err := r.SetCurrentVersion(ctx, ownerAddr, models.FamilyPrivate, -1); !errors.Is(err, models.ErrIndexOutOfRange) {
		t.Errorf("index -1: got %v, want ErrIndexOutOfRange", err)
	}
	if err := r.SetCurrentVersion(ctx, otherAddr, models.FamilyPrivate, 0); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("non-owner set: got %v, want ErrUnauthorized", err)
	}
}

func TestReadBeforeAnyVersionIsAnError(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.GetCurrent(ctx, models.FamilyBroadcast); !errors.Is(err, models.ErrNoFactoryVersions) {
		t.Errorf("get current on empty family: got %v, want ErrNoFactoryVersions", err)
	}
	if _, err := r.GetAll(ctx, models.FamilyBroadcast); !errors.Is(err, models.ErrNoFactoryVersions) {
		t.Errorf("get all on empty family: got %v, want ErrNoFactoryVersions", err)
	}
	if err := r.SetCurrentVersion(ctx, ownerAddr, models.FamilyBroadcast, 0); !errors.Is(err, models.ErrIndexOutOfRange) {
		t.Errorf("set current on empty family: got %v, want ErrIndexOutOfRange", err)
	}
}

func TestGetAllHistory(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		r.AddFactoryVersion(ctx, ownerAddr, models.FamilyBroadcast, id) //nolint:errcheck
	}
	state, err := r.GetAll(ctx, models.FamilyBroadcast)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(state.Versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(state.Versions))
	}
	for i, want := range []string{"a", "b", "c"} {
		if state.Versions[i].FactoryID != want {
			t.Errorf("version %d: got %s, want %s", i, state.Versions[i].FactoryID, want)
		}
	}
}
