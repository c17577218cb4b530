package paydo

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSign_SortsKeysAndAppendsSecret(t *testing.T) {
	fields := map[string]string{
		"id":       "order-42",
		"amount":   "25.0000",
		"currency": "USD",
	}

	// amount:currency:id sorted ascending, then status, then secret.
	sum := sha256.Sum256([]byte("25.0000:USD:order-42:success:s3cret"))
	require.Equal(t, hex.EncodeToString(sum[:]), Sign(fields, "success", "s3cret"))
}

func TestSign_OmitsEmptyStatus(t *testing.T) {
	fields := map[string]string{"id": "o-1", "amount": "1.0000", "currency": "EUR"}

	sum := sha256.Sum256([]byte("1.0000:EUR:o-1:k"))
	require.Equal(t, hex.EncodeToString(sum[:]), Sign(fields, "", "k"))
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	fields := map[string]string{"id": "o-7", "amount": "99.9900", "currency": "USD"}
	sig := Sign(fields, "success", "topsecret")

	require.True(t, VerifySignature(sig, fields, "success", "topsecret"))
}

func TestVerifySignature_RejectsTampering(t *testing.T) {
	base := map[string]string{"id": "o-7", "amount": "99.9900", "currency": "USD"}
	sig := Sign(base, "success", "topsecret")

	tests := []struct {
		name   string
		fields map[string]string
		status string
		secret string
	}{
		{"amount changed", map[string]string{"id": "o-7", "amount": "199.9900", "currency": "USD"}, "success", "topsecret"},
		{"currency changed", map[string]string{"id": "o-7", "amount": "99.9900", "currency": "EUR"}, "success", "topsecret"},
		{"order changed", map[string]string{"id": "o-8", "amount": "99.9900", "currency": "USD"}, "success", "topsecret"},
		{"status changed", base, "error", "topsecret"},
		{"wrong secret", base, "success", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, VerifySignature(sig, tt.fields, tt.status, tt.secret))
		})
	}
}

func TestVerifySignature_EmptyInputs(t *testing.T) {
	fields := map[string]string{"id": "o-1", "amount": "1.0000", "currency": "USD"}
	sig := Sign(fields, "success", "k")

	require.False(t, VerifySignature("", fields, "success", "k"))
	require.False(t, VerifySignature(sig, fields, "success", ""))
	require.False(t, VerifySignature(sig, map[string]string{"id": "", "amount": "1.0000", "currency": "USD"}, "success", "k"))
}
