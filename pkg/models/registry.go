package models

import "time"

// FactoryVersion is one entry in the master registry's upgrade log for a
// family. The sequence is append-only; Index is the 0-based position in it.
type FactoryVersion struct {
	ID           int64     `json:"-"`
	Family       Family    `json:"family"`
	Index        int       `json:"index"`
	FactoryID    string    `json:"factory_id"`
	RegisteredBy string    `json:"registered_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegistryState is the full registry view for one family: every factory
// version ever registered plus which one is current.
type RegistryState struct {
	Family       Family            `json:"family"`
	Versions     []*FactoryVersion `json:"versions"`
	CurrentIndex int               `json:"current_index"`
}
