package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest domains. The version suffix allows the hashing scheme to change
// without colliding with stored digests.
const (
	DomainEvent   = "lattice/event/v1"
	DomainSession = "lattice/session/v1"
	DomainState   = "lattice/state/v1"
)

// Digest hashes the canonical encoding of v, prefixed by domain and a NUL
// separator.
func Digest(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return DigestBytes(domain, data), nil
}

// DigestBytes hashes already-encoded data with domain separation.
func DigestBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
