package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/certledger/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a one-shot write finds the target already
// set (second init, second activation).
var ErrAlreadyExists = errors.New("already exists")

// Store defines the persistence interface for CertLedger.
//
// Mutations that carry invariants are atomic: version numbers are assigned
// under a lock on the parent certificate row, and activation is a guarded
// single-row update. A conflicting concurrent write fails outright; no
// partial state is ever visible.
type Store interface {
	// Ledger initialization (registry owner)
	InitLedger(ctx context.Context, ownerAddr string, at time.Time) error
	GetLedgerOwner(ctx context.Context) (string, error)
	IsInitialized(ctx context.Context) (bool, error)

	// Master registry
	AppendFactoryVersion(ctx context.Context, fv *models.FactoryVersion) error
	SetCurrentFactoryVersion(ctx context.Context, family models.Family, index int) error
	GetRegistryState(ctx context.Context, family models.Family) (*models.RegistryState, error)

	// Certificates
	InsertCertificate(ctx context.Context, cert *models.Certificate) error
	GetCertificate(ctx context.Context, id string) (*models.Certificate, error)
	ListCertificates(ctx context.Context, family models.Family) ([]*models.Certificate, error)
	AppendVersion(ctx context.Context, certID string, rec *models.VersionRecord) error
	ActivateCertificate(ctx context.Context, certID, userAddr string) error

	// Version records
	GetVersionByNumber(ctx context.Context, certID string, version int) (*models.VersionRecord, error)
	GetLatestVersion(ctx context.Context, certID string) (*models.VersionRecord, error)
	ListVersions(ctx context.Context, certID string) ([]*models.VersionRecord, error)
	GetVersionRecord(ctx context.Context, recordID string) (*models.VersionRecord, error)
	UpdateVersionStatus(ctx context.Context, recordID string, status models.Status) error
	UpdateVersionLinks(ctx context.Context, recordID, jsonLink, softCopyLink string) error

	// Identities
	WriteIdentity(ctx context.Context, ident *models.Identity, tokenHash string) error
	GetIdentityByToken(ctx context.Context, tokenHash string) (*models.Identity, error)
	GetIdentity(ctx context.Context, address string) (*models.Identity, error)
	RevokeIdentity(ctx context.Context, address string) error

	// Event log
	AppendEvent(ctx context.Context, ev *models.Event) error
	QueryEvents(ctx context.Context, filter EventFilter) ([]*models.Event, error)

	// Metrics helpers
	CountCertificates(ctx context.Context, family models.Family) (int64, error)
	CountActivated(ctx context.Context) (int64, error)

	// Lifecycle
	Close()
}

// EventFilter specifies query parameters for event log retrieval.
type EventFilter struct {
	Name     string
	EntityID string
	Since    *time.Time
	Limit    int
	Offset   int
}
