package paydo

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign builds the provider signature over the given fields: keys are sorted
// lexicographically ascending, values are taken in sorted-key order, the
// optional status element comes next and the secret is always last; the
// joined ":" string is hashed with SHA-256 and hex-encoded.
//
// Callers must format amounts with exactly four decimal places before
// signing; Sign does not reformat values.
func Sign(fields map[string]string, status, secret string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	if status != "" {
		parts = append(parts, status)
	}
	parts = append(parts, secret)

	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// VerifySignature recomputes the signature over the fields and compares it
// byte-for-byte in constant time. Returns false if the provided signature,
// the secret or any field value is empty.
func VerifySignature(provided string, fields map[string]string, status, secret string) bool {
	if provided == "" || secret == "" {
		return false
	}
	for _, v := range fields {
		if v == "" {
			return false
		}
	}
	want := Sign(fields, status, secret)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(want)) == 1
}
