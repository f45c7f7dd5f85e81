package githubapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const signatureScheme = "sha256="

// Sign computes the hex HMAC-SHA256 signature of payload under secret, in the
// same form GitHub sends in the X-Hub-Signature-256 header.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signatureScheme + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound webhook signature against the raw request
// body. It must be fed the exact bytes that arrived on the wire; a re-encoded
// copy will not produce the same digest. Missing header, missing secret or a
// length mismatch all report false rather than an error.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	if signatureHeader == "" || secret == "" {
		return false
	}

	expected := Sign(payload, secret)
	if len(signatureHeader) != len(expected) {
		return false
	}

	return hmac.Equal([]byte(signatureHeader), []byte(expected))
}
