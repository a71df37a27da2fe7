package models

import "time"

// Family selects which capabilities a certificate carries.
type Family string

const (
	FamilyBroadcast Family = "broadcast"
	FamilyPublic    Family = "public"
	FamilyPrivate   Family = "private"
)

// Valid reports whether f is one of the three known families.
func (f Family) Valid() bool {
	switch f {
	case FamilyBroadcast, FamilyPublic, FamilyPrivate:
		return true
	}
	return false
}

// HasActivation reports whether certificates of this family are bound to a
// recipient via a one-time activation code.
func (f Family) HasActivation() bool {
	return f == FamilyPublic || f == FamilyPrivate
}

// HasStorageLink reports whether version records of this family carry a public
// storage pointer set at creation time.
func (f Family) HasStorageLink() bool {
	return f == FamilyBroadcast || f == FamilyPublic
}

// HasDataLinks reports whether version records of this family carry recipient-
// writable encrypted data links.
func (f Family) HasDataLinks() bool {
	return f == FamilyPrivate
}

// Status is the lifecycle state of a version record.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is a defined status value.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusDisabled
}

// Certificate is the top-level versioned record representing one issued
// document. It is permanent: certificates are never destroyed.
type Certificate struct {
	ID                 string    `json:"id"`
	Family             Family    `json:"family"`
	FactoryID          string    `json:"factory_id"`
	Owner              string    `json:"owner"`
	Title              string    `json:"title"`
	ActivationCodeHash string    `json:"-"`
	User               string    `json:"user,omitempty"` // empty until activated
	ActiveVersion      int       `json:"active_version"` // always len(versions); 0 = unversioned
	CreatedAt          time.Time `json:"created_at"`
}

// Activated reports whether a recipient identity has been bound.
func (c *Certificate) Activated() bool {
	return c.User != ""
}

// VersionRecord is one immutable snapshot within a certificate's history.
// Only Status and, for private certificates, the two data links mutate after
// creation.
type VersionRecord struct {
	ID            string    `json:"id"`
	CertificateID string    `json:"certificate_id"`
	Owner         string    `json:"owner"`
	User          string    `json:"user,omitempty"`
	Status        Status    `json:"status"`
	Version       int       `json:"version"` // 1-based, unique per certificate
	JSONHash      string    `json:"json_hash"`
	SoftCopyHash  string    `json:"soft_copy_hash"`
	StorageLink   string    `json:"storage_link,omitempty"` // broadcast/public
	JSONLink      string    `json:"json_link,omitempty"`    // private
	SoftCopyLink  string    `json:"soft_copy_link,omitempty"`
	StartDate     int64     `json:"start_date"` // unix seconds
	EndDate       int64     `json:"end_date"`
	DeployTime    time.Time `json:"deploy_time"`
}
