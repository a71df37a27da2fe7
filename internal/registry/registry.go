// Package registry implements the master registry: per-family factory
// version history and the pointer to the current factory.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/org/certledger/internal/eventlog"
	"github.com/org/certledger/internal/storage"
	"github.com/org/certledger/pkg/models"
)

// Registry tracks which factory implementation is current for each family
// and the full append-only history of factory versions ever registered.
// It is advisory bookkeeping: changing the current version does not migrate
// existing certificates.
type Registry struct {
	store  storage.Store
	events *eventlog.Recorder
}

// New creates a Registry.
func New(store storage.Store, events *eventlog.Recorder) *Registry {
	return &Registry{store: store, events: events}
}

// AddFactoryVersion appends a factory reference to the family's upgrade log.
// Owner-only.
func (r *Registry) AddFactoryVersion(ctx context.Context, caller string, family models.Family, factoryID string) (*models.FactoryVersion, error) {
	if err := r.requireOwner(ctx, caller); err != nil {
		return nil, err
	}
	if !family.Valid() {
		return nil, models.ErrUnknownFamily
	}
	if factoryID == "" {
		return nil, fmt.Errorf("%w: factory id is required", models.ErrInvalidInput)
	}

	fv := &models.FactoryVersion{
		Family:       family,
		FactoryID:    factoryID,
		RegisteredBy: caller,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.AppendFactoryVersion(ctx, fv); err != nil {
		return nil, fmt.Errorf("appending factory version: %w", err)
	}

	r.events.Record(ctx, models.EventFactoryVersionAdded, string(family), caller, map[string]any{
		"family":     family,
		"index":      fv.Index,
		"factory_id": fv.FactoryID,
	})
	return fv, nil
}

// SetCurrentVersion points the family at an already-registered factory
// version. Owner-only. Fails with IndexOutOfRange if index is not a valid
// position in the family's version history.
func (r *Registry) SetCurrentVersion(ctx context.Context, caller string, family models.Family, index int) error {
	if err := r.requireOwner(ctx, caller); err != nil {
		return err
	}
	if !family.Valid() {
		return models.ErrUnknownFamily
	}

	state, err := r.store.GetRegistryState(ctx, family)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ErrIndexOutOfRange
		}
		return err
	}
	if index < 0 || index >= len(state.Versions) {
		return models.ErrIndexOutOfRange
	}

	if err := r.store.SetCurrentFactoryVersion(ctx, family, index); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ErrIndexOutOfRange
		}
		return err
	}

	r.events.Record(ctx, models.EventFactoryVersionSelected, string(family), caller, map[string]any{
		"family":     family,
		"index":      index,
		"factory_id": state.Versions[index].FactoryID,
	})
	return nil
}

// GetCurrent returns the factory version the family currently points at.
// Reading before any version is registered is an error, not a default.
func (r *Registry) GetCurrent(ctx context.Context, family models.Family) (*models.FactoryVersion, error) {
	if !family.Valid() {
		return nil, models.ErrUnknownFamily
	}
	state, err := r.store.GetRegistryState(ctx, family)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, models.ErrNoFactoryVersions
		}
		return nil, err
	}
	return state.Versions[state.CurrentIndex], nil
}

// GetAll returns the family's full version history and current index.
func (r *Registry) GetAll(ctx context.Context, family models.Family) (*models.RegistryState, error) {
	if !family.Valid() {
		return nil, models.ErrUnknownFamily
	}
	state, err := r.store.GetRegistryState(ctx, family)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, models.ErrNoFactoryVersions
		}
		return nil, err
	}
	return state, nil
}

func (r *Registry) requireOwner(ctx context.Context, caller string) error {
	owner, err := r.store.GetLedgerOwner(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errors.New("ledger not initialized")
		}
		return err
	}
	if caller != owner {
		return models.ErrUnauthorized
	}
	return nil
}
