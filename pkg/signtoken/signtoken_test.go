package signtoken

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSignTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := NewCodec(WithClock(fixedClock(now)))

	token, expiresAt, err := codec.Issue("doc-1", "user-7", 7)
	require.NoError(t, err)
	require.Equal(t, now.Add(7*24*time.Hour), expiresAt)

	result := codec.Validate(token)
	require.True(t, result.Valid)
	assert.False(t, result.Expired)
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, "user-7", result.SignerID)
}

func TestSignTokenExpiredStillDecodes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := NewCodec(WithClock(fixedClock(now)))

	token, _, err := codec.Issue("doc-1", "user-7", -1)
	require.NoError(t, err)

	result := codec.Validate(token)
	require.False(t, result.Valid)
	assert.True(t, result.Expired)
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, "user-7", result.SignerID)
}

func TestSignTokenMalformedInputs(t *testing.T) {
	codec := NewCodec()

	cases := map[string]string{
		"empty":          "",
		"not base64":     "!!!not-base64!!!",
		"wrong tag":      base64.RawURLEncoding.EncodeToString([]byte("NOPE|doc|signer|123|abcd")),
		"missing fields": base64.RawURLEncoding.EncodeToString([]byte("SIGN|doc|signer")),
		"extra fields":   base64.RawURLEncoding.EncodeToString([]byte("SIGN|doc|signer|123|abcd|extra")),
		"bad epoch":      base64.RawURLEncoding.EncodeToString([]byte("SIGN|doc|signer|soon|abcd")),
		"empty ids":      base64.RawURLEncoding.EncodeToString([]byte("SIGN|||123|abcd")),
	}

	for name, token := range cases {
		result := codec.Validate(token)
		assert.False(t, result.Valid, name)
		assert.Empty(t, result.DocumentID, name)
		assert.Empty(t, result.SignerID, name)
	}
}

func TestSignTokenURLSafeNoPadding(t *testing.T) {
	codec := NewCodec(WithEntropy(strings.NewReader("0123456789abcdef")))

	token, _, err := codec.Issue("doc-1", "user-7", 7)
	require.NoError(t, err)
	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
}

func TestSignTokenNonceVariesBetweenIssues(t *testing.T) {
	codec := NewCodec()

	first, _, err := codec.Issue("doc-1", "user-7", 7)
	require.NoError(t, err)
	second, _, err := codec.Issue("doc-1", "user-7", 7)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSignTokenRejectsDelimiterInIDs(t *testing.T) {
	codec := NewCodec()

	_, _, err := codec.Issue("doc|1", "user-7", 7)
	require.Error(t, err)
	_, _, err = codec.Issue("doc-1", "user|7", 7)
	require.Error(t, err)
}
