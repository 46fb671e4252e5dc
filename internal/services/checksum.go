package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ChecksumField carries the signature inside gateway callback payloads
const ChecksumField = "CHECKSUMHASH"

// SignPayload generates HMAC-SHA256 signature for a raw payload
func SignPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// SignFields signs key/value fields in canonical order: k1=v1|k2=v2, sorted by
// key, with the checksum field itself left out
func SignFields(fields map[string]string, secret string) string {
	return SignPayload([]byte(canonicalFields(fields)), secret)
}

// VerifyFields checks the checksum field against the remaining fields
func VerifyFields(fields map[string]string, secret string) bool {
	got := fields[ChecksumField]
	if got == "" || secret == "" {
		return false
	}
	want := SignFields(fields, secret)
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}

func canonicalFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == ChecksumField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}
