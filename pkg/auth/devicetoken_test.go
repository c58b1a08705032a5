package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueProducesDistinctTokens(t *testing.T) {
	tokens := NewDeviceTokens("secret")

	first, err := tokens.Issue("D1")
	require.NoError(t, err)
	second, err := tokens.Issue("D1")
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)
}

func TestIssueIsDeterministicForNonce(t *testing.T) {
	a := NewDeviceTokens("secret")
	b := NewDeviceTokens("secret")
	other := NewDeviceTokens("another")

	assert.Equal(t, a.issueWithNonce("D1", "n"), b.issueWithNonce("D1", "n"))
	assert.NotEqual(t, a.issueWithNonce("D1", "n"), a.issueWithNonce("D2", "n"))
	assert.NotEqual(t, a.issueWithNonce("D1", "n"), other.issueWithNonce("D1", "n"))
}

func TestIssueRequiresDeviceID(t *testing.T) {
	_, err := NewDeviceTokens("secret").Issue("")
	assert.Error(t, err)
}

func TestVerifyToken(t *testing.T) {
	tokens := NewDeviceTokens("secret")
	tokens.now = func() time.Time { return time.Unix(1700000000, 0) }

	token, err := tokens.Issue("D1")
	require.NoError(t, err)
	digest := HashToken(token)

	assert.True(t, VerifyToken(token, digest))
	assert.False(t, VerifyToken(token+"x", digest))
	assert.False(t, VerifyToken("", digest))
	assert.False(t, VerifyToken(token, ""))
	assert.False(t, VerifyToken("not hex at all", "zz"))
}

func TestReissueInvalidatesPreviousToken(t *testing.T) {
	tokens := NewDeviceTokens("secret")

	oldToken, err := tokens.Issue("D1")
	require.NoError(t, err)
	newToken, err := tokens.Issue("D1")
	require.NoError(t, err)

	newDigest := HashToken(newToken)
	assert.False(t, VerifyToken(oldToken, newDigest))
	assert.True(t, VerifyToken(newToken, newDigest))
}
