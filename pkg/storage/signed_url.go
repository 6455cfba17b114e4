package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid covers malformed or tampered download tokens.
	ErrTokenInvalid = errors.New("invalid download token")
	// ErrTokenExpired is returned for well-formed tokens past their deadline.
	ErrTokenExpired = errors.New("download token expired")
)

// DownloadGrant is what a signed token authorises: one object key, attributed
// to one attachment, until ExpiresAt.
type DownloadGrant struct {
	AttachmentID string
	Key          string
	ExpiresAt    time.Time
}

// SignedURLSigner creates and validates signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token granting access to key on behalf of attachmentID.
func (s *SignedURLSigner) Sign(attachmentID, key string) (string, DownloadGrant, error) {
	if attachmentID == "" || key == "" {
		return "", DownloadGrant{}, fmt.Errorf("attachment id and key required")
	}
	if len(s.secret) == 0 {
		return "", DownloadGrant{}, fmt.Errorf("signing secret missing")
	}
	grant := DownloadGrant{
		AttachmentID: attachmentID,
		Key:          key,
		ExpiresAt:    s.now().Add(s.ttl).Truncate(time.Second),
	}
	exp := strconv.FormatInt(grant.ExpiresAt.Unix(), 10)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))
	token := strings.Join([]string{attachmentID, exp, encodedKey, s.mac(attachmentID, exp, encodedKey)}, ".")
	return token, grant, nil
}

// Verify validates token and returns the grant it carries.
func (s *SignedURLSigner) Verify(token string) (DownloadGrant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return DownloadGrant{}, ErrTokenInvalid
	}
	attachmentID, exp, encodedKey, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.mac(attachmentID, exp, encodedKey)), []byte(signature)) {
		return DownloadGrant{}, ErrTokenInvalid
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return DownloadGrant{}, ErrTokenInvalid
	}
	rawKey, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return DownloadGrant{}, ErrTokenInvalid
	}

	grant := DownloadGrant{AttachmentID: attachmentID, Key: string(rawKey), ExpiresAt: time.Unix(expUnix, 0)}
	if s.now().After(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *SignedURLSigner) mac(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
