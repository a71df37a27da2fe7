// Package fingerprint computes the fixed-width digests the core stores and
// compares. The core never hashes file contents itself; callers fingerprint
// bytes before submitting them.
package fingerprint

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
)

// Size is the digest width in bytes.
const Size = 32

// Sum returns the SHA3-256 fingerprint of data as a 0x-prefixed hex string.
func Sum(data []byte) string {
	h := sha3.Sum256(data)
	return "0x" + hex.EncodeToString(h[:])
}

// SumString fingerprints a string, used for activation codes.
func SumString(s string) string {
	return Sum([]byte(s))
}

// Verify compares the fingerprint of code against an expected fingerprint in
// constant time.
func Verify(code, expected string) bool {
	got := SumString(code)
	return subtle.ConstantTimeCompare([]byte(got), []byte(normalize(expected))) == 1
}

// IsHex reports whether s is a well-formed fingerprint: 0x prefix optional,
// exactly Size bytes of hex.
func IsHex(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ContentID returns a CIDv1 string (raw codec, sha2-256 multihash) for data.
// This matches the pointer format of the content-addressed upload service, so
// the CLI can predict where uploaded bytes will live.
func ContentID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

func normalize(s string) string {
	if !strings.HasPrefix(s, "0x") {
		return "0x" + strings.ToLower(s)
	}
	return strings.ToLower(s)
}
