package httpx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the hex HMAC-SHA256 of a JSON report body.
const SignatureHeader = "X-Trackcheck-Signature"

// ReportSigner signs rendered JSON reports so downstream consumers can check
// they came from this service unmodified.
type ReportSigner struct {
	secret []byte
}

// NewReportSigner returns nil when secret is empty; a nil signer signs nothing.
func NewReportSigner(secret string) *ReportSigner {
	if secret == "" {
		return nil
	}
	return &ReportSigner{secret: []byte(secret)}
}

// Sign returns the hex-encoded HMAC-SHA256 of payload.
func (s *ReportSigner) Sign(payload []byte) string {
	if s == nil {
		return ""
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature against payload in constant time.
func (s *ReportSigner) Verify(payload []byte, signature string) bool {
	if s == nil || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(s.Sign(payload)))
}
