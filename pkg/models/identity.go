package models

import "time"

// Identity is a caller identity issued by the built-in identity service.
// Address is the stable 0x-prefixed identifier used as owner/user on
// certificates; the bearer token that maps to it is stored only as a hash.
type Identity struct {
	Address     string     `json:"address"`
	DisplayName string     `json:"display_name"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// IsRevoked reports whether the identity's token has been revoked.
func (i *Identity) IsRevoked() bool {
	return i.RevokedAt != nil
}
