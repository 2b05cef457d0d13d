package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// SignedFields is the exact field set, in order, covered by a callback
// signature. Both sides must agree on it; anything outside the list is not
// authenticated.
type SignedFields struct {
	Reference   string
	BookingID   string
	Status      string
	AmountCents int64
	Currency    string
}

// Sign computes the hex HMAC-SHA256 over the ordered field list.
func Sign(secret string, fields SignedFields) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalPayload(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the expected HMAC for fields.
// Comparison is constant time.
func Verify(secret string, fields SignedFields, signature string) bool {
	expected := Sign(secret, fields)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func canonicalPayload(fields SignedFields) string {
	parts := []string{
		fields.Reference,
		fields.BookingID,
		fields.Status,
		strconv.FormatInt(fields.AmountCents, 10),
		fields.Currency,
	}
	return strings.Join(parts, "|")
}
