package githubapi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main","after":"abc123"}`)
	secret := "super-secret"

	signature := Sign(payload, secret)
	require.True(t, strings.HasPrefix(signature, "sha256="))
	require.True(t, VerifySignature(payload, signature, secret))
}

func TestVerifySignatureRejectsMutatedPayload(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	secret := "super-secret"
	signature := Sign(payload, secret)

	mutated := append([]byte(nil), payload...)
	mutated[0] ^= 0x01

	require.False(t, VerifySignature(mutated, signature, secret))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	signature := Sign(payload, "secret-a")

	require.False(t, VerifySignature(payload, signature, "secret-b"))
}

func TestVerifySignatureNeverErrsOnMissingInput(t *testing.T) {
	payload := []byte("payload")

	require.False(t, VerifySignature(payload, "", "secret"))
	require.False(t, VerifySignature(payload, Sign(payload, "secret"), ""))
	require.False(t, VerifySignature(payload, "sha256=short", "secret"))
	require.False(t, VerifySignature(nil, "", ""))
}
