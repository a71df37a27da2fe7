// Package eventlog maintains the append-only domain event log, the system's
// only audit trail.
package eventlog

import (
	"context"
	"time"

	"github.com/org/certledger/internal/storage"
	"github.com/org/certledger/pkg/models"
	"github.com/rs/zerolog/log"
)

// Recorder appends domain events to storage.
type Recorder struct {
	store storage.Store
}

// NewRecorder creates an event Recorder.
func NewRecorder(store storage.Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends one event. Events are emitted after the state transition has
// committed; a failed append is logged but does not roll the operation back.
func (r *Recorder) Record(ctx context.Context, name, entityID, actor string, fields map[string]any) {
	ev := &models.Event{
		Name:      name,
		EntityID:  entityID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Fields:    fields,
	}
	if err := r.store.AppendEvent(ctx, ev); err != nil {
		log.Error().Err(err).Str("event", name).Str("entity", entityID).Msg("appending event")
	}
}

// Query retrieves event log entries in sequence order.
func (r *Recorder) Query(ctx context.Context, filter storage.EventFilter) ([]*models.Event, error) {
	return r.store.QueryEvents(ctx, filter)
}
