package httpx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestReportSigner(t *testing.T) {
	payload := []byte(`{"url":"https://a.test/"}`)

	mac := hmac.New(sha256.New, []byte("key"))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))

	s := NewReportSigner("key")
	if got := s.Sign(payload); got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
	if !s.Verify(payload, want) {
		t.Error("Verify rejected a valid signature")
	}

	tests := []struct {
		name    string
		payload []byte
		sig     string
	}{
		{"tampered body", []byte(`{"url":"https://b.test/"}`), want},
		{"empty signature", payload, ""},
		{"other key", payload, NewReportSigner("other").Sign(payload)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.Verify(tt.payload, tt.sig) {
				t.Error("Verify accepted an invalid signature")
			}
		})
	}
}

func TestNilReportSigner(t *testing.T) {
	s := NewReportSigner("")
	if s != nil {
		t.Fatal("empty secret should give a nil signer")
	}
	if s.Sign([]byte("x")) != "" || s.Verify([]byte("x"), "abc") {
		t.Error("nil signer must neither sign nor verify")
	}
}
