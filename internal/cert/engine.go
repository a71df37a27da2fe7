// Package cert implements the versioned-record and activation state machine
// shared by the three certificate families.
//
// One generic engine serves Broadcast, Public, and Private certificates; the
// field differences between them are expressed as family capabilities on
// models.Family rather than three copies of the logic.
package cert

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/org/certledger/internal/eventlog"
	"github.com/org/certledger/internal/fingerprint"
	"github.com/org/certledger/internal/registry"
	"github.com/org/certledger/internal/storage"
	"github.com/org/certledger/pkg/models"
)

// Engine owns every certificate state transition. All mutations are atomic:
// either the whole transition commits or prior state is left untouched.
type Engine struct {
	store    storage.Store
	registry *registry.Registry
	events   *eventlog.Recorder
}

// NewEngine creates the certificate Engine.
func NewEngine(store storage.Store, reg *registry.Registry, events *eventlog.Recorder) *Engine {
	return &Engine{store: store, registry: reg, events: events}
}

// AddVersionInput carries the caller-supplied fields of a new version record.
// Hashes are fingerprints computed by the caller; the engine only stores and
// compares them.
type AddVersionInput struct {
	JSONHash     string
	SoftCopyHash string
	StorageLink  string
	StartDate    int64
	EndDate      int64
}

// Create issues a new certificate through the family's current factory
// version. Any caller may create; the caller becomes the owner. Public and
// Private certificates require a non-empty activation code, which is stored
// only as a fingerprint.
func (e *Engine) Create(ctx context.Context, caller string, family models.Family, title, activationCode string) (*models.Certificate, error) {
	if !family.Valid() {
		return nil, models.ErrUnknownFamily
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}

	var codeHash string
	if family.HasActivation() {
		if activationCode == "" {
			return nil, fmt.Errorf("%w: activation code is required for %s certificates", models.ErrInvalidInput, family)
		}
		codeHash = fingerprint.SumString(activationCode)
	} else if activationCode != "" {
		return nil, fmt.Errorf("%w: broadcast certificates take no activation code", models.ErrInvalidInput)
	}

	factory, err := e.registry.GetCurrent(ctx, family)
	if err != nil {
		return nil, err
	}

	cert := &models.Certificate{
		ID:                 newUUID(),
		Family:             family,
		FactoryID:          factory.FactoryID,
		Owner:              caller,
		Title:              title,
		ActivationCodeHash: codeHash,
		CreatedAt:          time.Now().UTC(),
	}
	if err := e.store.InsertCertificate(ctx, cert); err != nil {
		return nil, fmt.Errorf("storing certificate: %w", err)
	}

	e.events.Record(ctx, models.EventCertificateCreated, cert.ID, caller, map[string]any{
		"factory_id": cert.FactoryID,
		"family":     cert.Family,
		"owner":      cert.Owner,
		"title":      cert.Title,
	})
	return cert, nil
}

// AddVersion appends a new version record to a certificate. Owner-only.
// The new record becomes active (active = newest); if the certificate is
// already activated the record inherits the bound user without a separate
// activation step.
func (e *Engine) AddVersion(ctx context.Context, caller, certID string, in AddVersionInput) (*models.VersionRecord, error) {
	cert, err := e.store.GetCertificate(ctx, certID)
	if err != nil {
		return nil, err
	}
	if caller != cert.Owner {
		return nil, models.ErrUnauthorized
	}
	if err := validateVersionInput(cert.Family, in); err != nil {
		return nil, err
	}

	rec := &models.VersionRecord{
		ID:           newUUID(),
		Status:       models.StatusActive,
		JSONHash:     in.JSONHash,
		SoftCopyHash: in.SoftCopyHash,
		StorageLink:  in.StorageLink,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		DeployTime:   time.Now().UTC(),
	}
	// Version number, owner, and inherited user are assigned under the
	// parent's lock inside AppendVersion.
	if err := e.store.AppendVersion(ctx, certID, rec); err != nil {
		return nil, fmt.Errorf("appending version: %w", err)
	}
	if err := e.checkActiveIsNewest(ctx, certID, rec.Version); err != nil {
		return nil, err
	}

	e.events.Record(ctx, models.EventVersionAdded, rec.ID, caller, map[string]any{
		"certificate_id": certID,
		"version":        rec.Version,
		"owner":          rec.Owner,
		"start_date":     rec.StartDate,
		"end_date":       rec.EndDate,
	})
	return rec, nil
}

// checkActiveIsNewest asserts the invariant that the active version pointer
// equals the newest version number after every append.
func (e *Engine) checkActiveIsNewest(ctx context.Context, certID string, appended int) error {
	cert, err := e.store.GetCertificate(ctx, certID)
	if err != nil {
		return err
	}
	if cert.ActiveVersion < appended {
		return fmt.Errorf("active version %d behind appended version %d on %s",
			cert.ActiveVersion, appended, certID)
	}
	return nil
}

// Activate binds the caller's identity to the certificate, exactly once.
// Any caller except the owner may activate; there is no inverse operation.
func (e *Engine) Activate(ctx context.Context, caller, certID, activationCode string) (*models.Certificate, error) {
	cert, err := e.store.GetCertificate(ctx, certID)
	if err != nil {
		return nil, err
	}
	if !cert.Family.HasActivation() {
		return nil, models.ErrNotSupported
	}
	// A second activation fails regardless of code correctness.
	if cert.Activated() {
		return nil, models.ErrAlreadyActivated
	}
	if !fingerprint.Verify(activationCode, cert.ActivationCodeHash) {
		return nil, models.ErrInvalidActivationCode
	}
	if caller == cert.Owner {
		return nil, models.ErrUnauthorized
	}

	if err := e.store.ActivateCertificate(ctx, certID, caller); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, models.ErrAlreadyActivated
		}
		return nil, fmt.Errorf("activating certificate: %w", err)
	}
	cert.User = caller

	e.events.Record(ctx, models.EventActivated, certID, caller, map[string]any{
		"owner": cert.Owner,
		"user":  caller,
		"title": cert.Title,
	})
	return cert, nil
}

// Get returns one certificate by id.
func (e *Engine) Get(ctx context.Context, certID string) (*models.Certificate, error) {
	return e.store.GetCertificate(ctx, certID)
}

// List returns certificates in creation order, optionally filtered by family.
func (e *Engine) List(ctx context.Context, family models.Family) ([]*models.Certificate, error) {
	if family != "" && !family.Valid() {
		return nil, models.ErrUnknownFamily
	}
	return e.store.ListCertificates(ctx, family)
}

// GetByIndex returns the i-th certificate (0-based, creation order) of a
// family's factory registry.
func (e *Engine) GetByIndex(ctx context.Context, family models.Family, i int) (*models.Certificate, error) {
	if !family.Valid() {
		return nil, models.ErrUnknownFamily
	}
	certs, err := e.store.ListCertificates(ctx, family)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(certs) {
		return nil, models.ErrIndexOutOfRange
	}
	return certs[i], nil
}

// GetCurrentVersion returns the active (newest) version record.
func (e *Engine) GetCurrentVersion(ctx context.Context, certID string) (*models.VersionRecord, error) {
	cert, err := e.store.GetCertificate(ctx, certID)
	if err != nil {
		return nil, err
	}
	if cert.ActiveVersion == 0 {
		return nil, models.ErrNoVersions
	}
	return e.store.GetLatestVersion(ctx, certID)
}

// GetVersionByNumber returns version n of a certificate, 1-based.
func (e *Engine) GetVersionByNumber(ctx context.Context, certID string, n int) (*models.VersionRecord, error) {
	cert, err := e.store.GetCertificate(ctx, certID)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > cert.ActiveVersion {
		return nil, models.ErrInvalidVersionNumber
	}
	return e.store.GetVersionByNumber(ctx, certID, n)
}

// ListVersions returns all version records of a certificate in order.
func (e *Engine) ListVersions(ctx context.Context, certID string) ([]*models.VersionRecord, error) {
	if _, err := e.store.GetCertificate(ctx, certID); err != nil {
		return nil, err
	}
	return e.store.ListVersions(ctx, certID)
}

// GetDetail returns one version record by record id, for display.
func (e *Engine) GetDetail(ctx context.Context, recordID string) (*models.VersionRecord, error) {
	return e.store.GetVersionRecord(ctx, recordID)
}

// UpdateStatus sets a version record's status. Only the record's owner may
// call it. Setting the same status twice succeeds (idempotent).
func (e *Engine) UpdateStatus(ctx context.Context, caller, recordID string, status models.Status) error {
	if !status.Valid() {
		return models.ErrInvalidStatus
	}
	rec, err := e.store.GetVersionRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if caller != rec.Owner {
		return models.ErrUnauthorized
	}
	if err := e.store.UpdateVersionStatus(ctx, recordID, status); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	e.events.Record(ctx, models.EventStatusUpdated, recordID, caller, map[string]any{
		"certificate_id": rec.CertificateID,
		"status":         status,
	})
	return nil
}

// UpdateDataLinks overwrites both private data links on a version record.
// Only the parent certificate's bound user may call it, any number of times;
// link strings are opaque and not validated.
func (e *Engine) UpdateDataLinks(ctx context.Context, caller, recordID, jsonLink, softCopyLink string) error {
	rec, err := e.store.GetVersionRecord(ctx, recordID)
	if err != nil {
		return err
	}
	cert, err := e.store.GetCertificate(ctx, rec.CertificateID)
	if err != nil {
		return err
	}
	if !cert.Family.HasDataLinks() {
		return models.ErrNotSupported
	}
	if !cert.Activated() || caller != cert.User {
		return models.ErrUnauthorized
	}
	if err := e.store.UpdateVersionLinks(ctx, recordID, jsonLink, softCopyLink); err != nil {
		return fmt.Errorf("updating data links: %w", err)
	}

	e.events.Record(ctx, models.EventDataLinksUpdated, recordID, caller, map[string]any{
		"certificate_id": rec.CertificateID,
	})
	return nil
}

func validateVersionInput(family models.Family, in AddVersionInput) error {
	if in.JSONHash == "" || in.SoftCopyHash == "" {
		return fmt.Errorf("%w: json hash and soft copy hash are required", models.ErrInvalidInput)
	}
	if !fingerprint.IsHex(in.JSONHash) || !fingerprint.IsHex(in.SoftCopyHash) {
		return fmt.Errorf("%w: hashes must be %d-byte hex fingerprints", models.ErrInvalidInput, fingerprint.Size)
	}
	if family.HasStorageLink() && in.StorageLink == "" {
		return fmt.Errorf("%w: storage link is required for %s certificates", models.ErrInvalidInput, family)
	}
	if !family.HasStorageLink() && in.StorageLink != "" {
		return fmt.Errorf("%w: private certificates take no storage link", models.ErrInvalidInput)
	}
	return nil
}

func newUUID() string {
	b := make([]byte, 16)
	rand.Read(b) //nolint:errcheck
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
