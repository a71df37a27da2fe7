package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/org/certledger/pkg/models"
)

// MemoryStore is an in-memory Store used for development mode and tests.
// A single mutex serializes every mutation, mirroring the single-writer
// transaction model of the postgres backend.
type MemoryStore struct {
	mu sync.RWMutex

	ownerAddr   string
	initialized bool
	initAt      time.Time

	families map[models.Family]*models.RegistryState

	certs   map[string]*models.Certificate
	records map[string]*models.VersionRecord        // by record id
	byCert  map[string][]*models.VersionRecord      // certID → ordered records

	identities map[string]*models.Identity // by address
	tokens     map[string]string           // token hash → address

	events  []*models.Event
	nextSeq int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		families:   map[models.Family]*models.RegistryState{},
		certs:      map[string]*models.Certificate{},
		records:    map[string]*models.VersionRecord{},
		byCert:     map[string][]*models.VersionRecord{},
		identities: map[string]*models.Identity{},
		tokens:     map[string]string{},
		nextSeq:    1,
	}
}

func (m *MemoryStore) Close() {}

// --- Ledger init ---

func (m *MemoryStore) InitLedger(_ context.Context, ownerAddr string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return ErrAlreadyExists
	}
	m.ownerAddr = ownerAddr
	m.initAt = at
	m.initialized = true
	return nil
}

func (m *MemoryStore) GetLedgerOwner(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return "", ErrNotFound
	}
	return m.ownerAddr, nil
}

func (m *MemoryStore) IsInitialized(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized, nil
}

// --- Master registry ---

func (m *MemoryStore) AppendFactoryVersion(_ context.Context, fv *models.FactoryVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.families[fv.Family]
	if state == nil {
		state = &models.RegistryState{Family: fv.Family}
		m.families[fv.Family] = state
	}
	fv.Index = len(state.Versions)
	fv.ID = int64(fv.Index + 1)
	state.Versions = append(state.Versions, fv)
	return nil
}

func (m *MemoryStore) SetCurrentFactoryVersion(_ context.Context, family models.Family, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.families[family]
	if state == nil || index < 0 || index >= len(state.Versions) {
		return ErrNotFound
	}
	state.CurrentIndex = index
	return nil
}

func (m *MemoryStore) GetRegistryState(_ context.Context, family models.Family) (*models.RegistryState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state := m.families[family]
	if state == nil || len(state.Versions) == 0 {
		return nil, ErrNotFound
	}
	out := &models.RegistryState{Family: family, CurrentIndex: state.CurrentIndex}
	out.Versions = append(out.Versions, state.Versions...)
	return out, nil
}

// --- Certificates ---

func (m *MemoryStore) InsertCertificate(_ context.Context, cert *models.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.certs[cert.ID]; ok {
		return ErrAlreadyExists
	}
	c := *cert
	m.certs[cert.ID] = &c
	return nil
}

func (m *MemoryStore) GetCertificate(_ context.Context, id string) (*models.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *MemoryStore) ListCertificates(_ context.Context, family models.Family) ([]*models.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var certs []*models.Certificate
	for _, c := range m.certs {
		if family != "" && c.Family != family {
			continue
		}
		out := *c
		certs = append(certs, &out)
	}
	sort.Slice(certs, func(i, j int) bool {
		if certs[i].CreatedAt.Equal(certs[j].CreatedAt) {
			return certs[i].ID < certs[j].ID
		}
		return certs[i].CreatedAt.Before(certs[j].CreatedAt)
	})
	return certs, nil
}

func (m *MemoryStore) AppendVersion(_ context.Context, certID string, rec *models.VersionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cert, ok := m.certs[certID]
	if !ok {
		return ErrNotFound
	}
	rec.CertificateID = certID
	rec.Version = len(m.byCert[certID]) + 1
	rec.Owner = cert.Owner
	rec.User = cert.User
	stored := *rec
	m.records[rec.ID] = &stored
	m.byCert[certID] = append(m.byCert[certID], &stored)
	cert.ActiveVersion = rec.Version
	return nil
}

func (m *MemoryStore) ActivateCertificate(_ context.Context, certID, userAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cert, ok := m.certs[certID]
	if !ok {
		return ErrNotFound
	}
	if cert.User != "" {
		return ErrAlreadyExists
	}
	cert.User = userAddr
	if recs := m.byCert[certID]; len(recs) > 0 {
		recs[len(recs)-1].User = userAddr
	}
	return nil
}

// --- Version records ---

func (m *MemoryStore) GetVersionByNumber(_ context.Context, certID string, version int) (*models.VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.byCert[certID] {
		if r.Version == version {
			out := *r
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetLatestVersion(_ context.Context, certID string) (*models.VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.byCert[certID]
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	out := *recs[len(recs)-1]
	return &out, nil
}

func (m *MemoryStore) ListVersions(_ context.Context, certID string) ([]*models.VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []*models.VersionRecord
	for _, r := range m.byCert[certID] {
		out := *r
		recs = append(recs, &out)
	}
	return recs, nil
}

func (m *MemoryStore) GetVersionRecord(_ context.Context, recordID string) (*models.VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

func (m *MemoryStore) UpdateVersionStatus(_ context.Context, recordID string, status models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordID]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	return nil
}

func (m *MemoryStore) UpdateVersionLinks(_ context.Context, recordID, jsonLink, softCopyLink string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordID]
	if !ok {
		return ErrNotFound
	}
	r.JSONLink = jsonLink
	r.SoftCopyLink = softCopyLink
	return nil
}

// --- Identities ---

func (m *MemoryStore) WriteIdentity(_ context.Context, ident *models.Identity, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[ident.Address]; ok {
		return ErrAlreadyExists
	}
	stored := *ident
	m.identities[ident.Address] = &stored
	m.tokens[tokenHash] = ident.Address
	return nil
}

func (m *MemoryStore) GetIdentityByToken(_ context.Context, tokenHash string) (*models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.tokens[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *m.identities[addr]
	return &out, nil
}

func (m *MemoryStore) GetIdentity(_ context.Context, address string) (*models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ident, ok := m.identities[address]
	if !ok {
		return nil, ErrNotFound
	}
	out := *ident
	return &out, nil
}

func (m *MemoryStore) RevokeIdentity(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ident, ok := m.identities[address]; ok && ident.RevokedAt == nil {
		now := time.Now().UTC()
		ident.RevokedAt = &now
	}
	return nil
}

// --- Event log ---

func (m *MemoryStore) AppendEvent(_ context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.Seq = m.nextSeq
	m.nextSeq++
	stored := *ev
	m.events = append(m.events, &stored)
	return nil
}

func (m *MemoryStore) QueryEvents(_ context.Context, filter EventFilter) ([]*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Event
	skipped := 0
	for _, e := range m.events {
		if filter.Name != "" && e.Name != filter.Name {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		ev := *e
		out = append(out, &ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// --- Metrics ---

func (m *MemoryStore) CountCertificates(_ context.Context, family models.Family) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if family == "" {
		return int64(len(m.certs)), nil
	}
	var n int64
	for _, c := range m.certs {
		if c.Family == family {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountActivated(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, c := range m.certs {
		if c.User != "" {
			n++
		}
	}
	return n, nil
}
