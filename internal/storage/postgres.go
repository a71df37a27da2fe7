package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/certledger/pkg/models"
)

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pgxpool connection and returns a ready store.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

// --- Ledger init ---

func (p *PostgresStore) InitLedger(ctx context.Context, ownerAddr string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO ledger_init (owner_addr, initialized_at)
		 SELECT $1, $2
		 WHERE NOT EXISTS (SELECT 1 FROM ledger_init)`,
		ownerAddr, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (p *PostgresStore) GetLedgerOwner(ctx context.Context) (string, error) {
	var owner string
	err := p.pool.QueryRow(ctx,
		`SELECT owner_addr FROM ledger_init ORDER BY id LIMIT 1`,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return owner, nil
}

func (p *PostgresStore) IsInitialized(ctx context.Context) (bool, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_init`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// --- Master registry ---

func (p *PostgresStore) AppendFactoryVersion(ctx context.Context, fv *models.FactoryVersion) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// First version for a family starts the current pointer at index 0;
	// later appends never move it.
	_, err = tx.Exec(ctx,
		`INSERT INTO registry_families (family, current_idx)
		 VALUES ($1, 0)
		 ON CONFLICT (family) DO NOTHING`,
		string(fv.Family),
	)
	if err != nil {
		return fmt.Errorf("upserting family row: %w", err)
	}

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(idx) + 1, 0) FROM factory_versions WHERE family = $1`,
		string(fv.Family),
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("fetching next index: %w", err)
	}
	fv.Index = next

	err = tx.QueryRow(ctx,
		`INSERT INTO factory_versions (family, idx, factory_id, registered_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		string(fv.Family), fv.Index, fv.FactoryID, fv.RegisteredBy, fv.CreatedAt,
	).Scan(&fv.ID)
	if err != nil {
		return fmt.Errorf("inserting factory version: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) SetCurrentFactoryVersion(ctx context.Context, family models.Family, index int) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE registry_families
		 SET current_idx = $2
		 WHERE family = $1
		   AND $2 >= 0
		   AND $2 < (SELECT COUNT(*) FROM factory_versions WHERE family = $1)`,
		string(family), index,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) GetRegistryState(ctx context.Context, family models.Family) (*models.RegistryState, error) {
	var current int
	err := p.pool.QueryRow(ctx,
		`SELECT current_idx FROM registry_families WHERE family = $1`,
		string(family),
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, idx, factory_id, registered_by, created_at
		 FROM factory_versions WHERE family = $1 ORDER BY idx`,
		string(family),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	state := &models.RegistryState{Family: family, CurrentIndex: current}
	for rows.Next() {
		fv := &models.FactoryVersion{Family: family}
		if err := rows.Scan(&fv.ID, &fv.Index, &fv.FactoryID, &fv.RegisteredBy, &fv.CreatedAt); err != nil {
			return nil, err
		}
		state.Versions = append(state.Versions, fv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(state.Versions) == 0 {
		return nil, ErrNotFound
	}
	return state, nil
}

// --- Certificates ---

func (p *PostgresStore) InsertCertificate(ctx context.Context, cert *models.Certificate) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO certificates (id, family, factory_id, owner_addr, title, activation_code_hash, user_addr, active_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, '', 0, $7)`,
		cert.ID, string(cert.Family), cert.FactoryID, cert.Owner, cert.Title,
		cert.ActivationCodeHash, cert.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetCertificate(ctx context.Context, id string) (*models.Certificate, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, family, factory_id, owner_addr, title, activation_code_hash, user_addr, active_version, created_at
		 FROM certificates WHERE id = $1`,
		id,
	)
	return scanCertificate(row)
}

func scanCertificate(row pgx.Row) (*models.Certificate, error) {
	var c models.Certificate
	var family string
	err := row.Scan(&c.ID, &family, &c.FactoryID, &c.Owner, &c.Title,
		&c.ActivationCodeHash, &c.User, &c.ActiveVersion, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Family = models.Family(family)
	return &c, nil
}

func (p *PostgresStore) ListCertificates(ctx context.Context, family models.Family) ([]*models.Certificate, error) {
	query := `SELECT id, family, factory_id, owner_addr, title, activation_code_hash, user_addr, active_version, created_at
	          FROM certificates`
	args := []any{}
	if family != "" {
		query += ` WHERE family = $1`
		args = append(args, string(family))
	}
	query += ` ORDER BY created_at, id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	return certs, rows.Err()
}

// AppendVersion inserts a new version record for certID. The parent row is
// locked for the duration of the transaction: the version number is assigned
// as max+1, owner and current user are copied from the parent, and the
// parent's active_version pointer is advanced, all atomically.
func (p *PostgresStore) AppendVersion(ctx context.Context, certID string, rec *models.VersionRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var owner, user string
	err = tx.QueryRow(ctx,
		`SELECT owner_addr, user_addr FROM certificates WHERE id = $1 FOR UPDATE`,
		certID,
	).Scan(&owner, &user)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("locking certificate: %w", err)
	}

	var maxVer int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM version_records WHERE certificate_id = $1`,
		certID,
	).Scan(&maxVer)
	if err != nil {
		return fmt.Errorf("fetching max version: %w", err)
	}

	rec.CertificateID = certID
	rec.Version = maxVer + 1
	rec.Owner = owner
	rec.User = user // inherit current activation, if any

	_, err = tx.Exec(ctx,
		`INSERT INTO version_records (id, certificate_id, owner_addr, user_addr, status, version,
		                              json_hash, soft_copy_hash, storage_link, json_link, soft_copy_link,
		                              start_date, end_date, deploy_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.CertificateID, rec.Owner, rec.User, string(rec.Status), rec.Version,
		rec.JSONHash, rec.SoftCopyHash, rec.StorageLink, rec.JSONLink, rec.SoftCopyLink,
		rec.StartDate, rec.EndDate, rec.DeployTime,
	)
	if err != nil {
		return fmt.Errorf("inserting version record: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE certificates SET active_version = $2 WHERE id = $1`,
		certID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("advancing active version: %w", err)
	}
	return tx.Commit(ctx)
}

// ActivateCertificate binds userAddr to the certificate. The guarded update
// makes the transition one-shot: a second attempt finds user_addr already set
// and fails with ErrAlreadyExists. The newest version record is stamped with
// the user in the same transaction.
func (p *PostgresStore) ActivateCertificate(ctx context.Context, certID, userAddr string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE certificates SET user_addr = $2 WHERE id = $1 AND user_addr = ''`,
		certID, userAddr,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM certificates WHERE id = $1)`, certID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadyExists
	}

	_, err = tx.Exec(ctx,
		`UPDATE version_records SET user_addr = $2
		 WHERE certificate_id = $1
		   AND version = (SELECT active_version FROM certificates WHERE id = $1)`,
		certID, userAddr,
	)
	if err != nil {
		return fmt.Errorf("stamping active record: %w", err)
	}
	return tx.Commit(ctx)
}

// --- Version records ---

const versionRecordCols = `id, certificate_id, owner_addr, user_addr, status, version,
	json_hash, soft_copy_hash, storage_link, json_link, soft_copy_link,
	start_date, end_date, deploy_time`

func (p *PostgresStore) GetVersionByNumber(ctx context.Context, certID string, version int) (*models.VersionRecord, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+versionRecordCols+` FROM version_records WHERE certificate_id = $1 AND version = $2`,
		certID, version,
	)
	return scanVersionRecord(row)
}

func (p *PostgresStore) GetLatestVersion(ctx context.Context, certID string) (*models.VersionRecord, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+versionRecordCols+` FROM version_records
		 WHERE certificate_id = $1 ORDER BY version DESC LIMIT 1`,
		certID,
	)
	return scanVersionRecord(row)
}

func (p *PostgresStore) ListVersions(ctx context.Context, certID string) ([]*models.VersionRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+versionRecordCols+` FROM version_records
		 WHERE certificate_id = $1 ORDER BY version`,
		certID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.VersionRecord
	for rows.Next() {
		rec, err := scanVersionRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (p *PostgresStore) GetVersionRecord(ctx context.Context, recordID string) (*models.VersionRecord, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+versionRecordCols+` FROM version_records WHERE id = $1`,
		recordID,
	)
	return scanVersionRecord(row)
}

func scanVersionRecord(row pgx.Row) (*models.VersionRecord, error) {
	var r models.VersionRecord
	var status string
	err := row.Scan(&r.ID, &r.CertificateID, &r.Owner, &r.User, &status, &r.Version,
		&r.JSONHash, &r.SoftCopyHash, &r.StorageLink, &r.JSONLink, &r.SoftCopyLink,
		&r.StartDate, &r.EndDate, &r.DeployTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Status = models.Status(status)
	return &r, nil
}

func (p *PostgresStore) UpdateVersionStatus(ctx context.Context, recordID string, status models.Status) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE version_records SET status = $2 WHERE id = $1`,
		recordID, string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) UpdateVersionLinks(ctx context.Context, recordID, jsonLink, softCopyLink string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE version_records SET json_link = $2, soft_copy_link = $3 WHERE id = $1`,
		recordID, jsonLink, softCopyLink,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Identities ---

func (p *PostgresStore) WriteIdentity(ctx context.Context, ident *models.Identity, tokenHash string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO identities (address, display_name, token_hash, created_at)
		 VALUES ($1, $2, $3, $4)`,
		ident.Address, ident.DisplayName, tokenHash, ident.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetIdentityByToken(ctx context.Context, tokenHash string) (*models.Identity, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT address, display_name, created_at, revoked_at FROM identities WHERE token_hash = $1`,
		tokenHash,
	)
	return scanIdentity(row)
}

func (p *PostgresStore) GetIdentity(ctx context.Context, address string) (*models.Identity, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT address, display_name, created_at, revoked_at FROM identities WHERE address = $1`,
		address,
	)
	return scanIdentity(row)
}

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var ident models.Identity
	err := row.Scan(&ident.Address, &ident.DisplayName, &ident.CreatedAt, &ident.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ident, nil
}

func (p *PostgresStore) RevokeIdentity(ctx context.Context, address string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE identities SET revoked_at = NOW() WHERE address = $1 AND revoked_at IS NULL`,
		address,
	)
	return err
}

// --- Event log ---

func (p *PostgresStore) AppendEvent(ctx context.Context, ev *models.Event) error {
	fieldsJSON, err := json.Marshal(ev.Fields)
	if err != nil {
		fieldsJSON = []byte("{}")
	}
	return p.pool.QueryRow(ctx,
		`INSERT INTO events (name, entity_id, actor, ts, fields)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING seq`,
		ev.Name, ev.EntityID, ev.Actor, ev.Timestamp, fieldsJSON,
	).Scan(&ev.Seq)
}

func (p *PostgresStore) QueryEvents(ctx context.Context, filter EventFilter) ([]*models.Event, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT seq, name, entity_id, actor, ts, fields FROM events WHERE 1=1`)
	args := []any{}
	n := 1
	if filter.Name != "" {
		fmt.Fprintf(&query, ` AND name = $%d`, n)
		args = append(args, filter.Name)
		n++
	}
	if filter.EntityID != "" {
		fmt.Fprintf(&query, ` AND entity_id = $%d`, n)
		args = append(args, filter.EntityID)
		n++
	}
	if filter.Since != nil {
		fmt.Fprintf(&query, ` AND ts >= $%d`, n)
		args = append(args, filter.Since)
		n++
	}
	query.WriteString(` ORDER BY seq`)
	if filter.Limit > 0 {
		fmt.Fprintf(&query, ` LIMIT $%d`, n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&query, ` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var e models.Event
		var fieldsJSON []byte
		if err := rows.Scan(&e.Seq, &e.Name, &e.EntityID, &e.Actor, &e.Timestamp, &fieldsJSON); err != nil {
			return nil, err
		}
		json.Unmarshal(fieldsJSON, &e.Fields) //nolint:errcheck
		events = append(events, &e)
	}
	return events, rows.Err()
}

// --- Metrics ---

func (p *PostgresStore) CountCertificates(ctx context.Context, family models.Family) (int64, error) {
	var count int64
	var err error
	if family == "" {
		err = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&count)
	} else {
		err = p.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM certificates WHERE family = $1`, string(family),
		).Scan(&count)
	}
	return count, err
}

func (p *PostgresStore) CountActivated(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM certificates WHERE user_addr <> ''`,
	).Scan(&count)
	return count, err
}
