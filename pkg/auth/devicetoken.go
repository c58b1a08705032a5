package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DeviceTokens issues and verifies opaque device credentials. Only the SHA-256
// digest of a token is ever stored.
type DeviceTokens struct {
	secret []byte
	now    func() time.Time
}

// NewDeviceTokens creates a token authenticator keyed by a server-side secret
func NewDeviceTokens(secret string) *DeviceTokens {
	return &DeviceTokens{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue binds a device identity, the server secret and a fresh nonce into a
// new hex token
func (t *DeviceTokens) Issue(deviceID string) (string, error) {
	if deviceID == "" {
		return "", errors.New("device id required")
	}
	nonce := strconv.FormatInt(t.now().UnixNano(), 10) + "." + uuid.NewString()
	return t.issueWithNonce(deviceID, nonce), nil
}

func (t *DeviceTokens) issueWithNonce(deviceID, nonce string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(deviceID + ":" + nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashToken returns the hex SHA-256 digest stored for a token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken reports whether presented hashes to storedDigest. Empty input
// never verifies.
func VerifyToken(presented, storedDigest string) bool {
	if presented == "" || storedDigest == "" {
		return false
	}
	digest := HashToken(presented)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(storedDigest)) == 1
}
