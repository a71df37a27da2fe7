package models

import "time"

// Event names. The event log is the only audit trail: every mutating
// operation appends exactly one entry.
const (
	EventCertificateCreated     = "CertificateCreated"
	EventVersionAdded           = "VersionAdded"
	EventActivated              = "Activated"
	EventStatusUpdated          = "StatusUpdated"
	EventDataLinksUpdated       = "DataLinksUpdated"
	EventFactoryVersionAdded    = "FactoryVersionAdded"
	EventFactoryVersionSelected = "FactoryVersionSelected"
)

// Event is one append-only log entry. Seq is assigned by storage and gives
// the stable total order.
type Event struct {
	Seq       int64          `json:"seq"`
	Name      string         `json:"name"`
	EntityID  string         `json:"entity_id"` // certificate, record, or family key
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}
