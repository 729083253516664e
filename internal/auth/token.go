package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Salt contexts. A token issued under one context never validates under another.
const (
	SaltEmailConfirm   = "email-confirm"
	SaltChangePassword = "change-password"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type claims struct {
	Payload string `json:"pld"`
	Context string `json:"ctx"`
	jwt.RegisteredClaims
}

// Codec issues and validates signed, timestamped tokens. Nothing is stored
// server-side: a token is valid iff its signature verifies under the salt's
// derived key and it is younger than the caller's max age.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

// WithClock returns a copy of the codec that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{secret: c.secret, now: now}
}

func (c *Codec) Issue(payload, salt string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Payload: payload,
		Context: salt,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(c.now()),
		},
	})
	signed, err := token.SignedString(c.key(salt))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate returns the payload carried by token when it was issued under salt
// no more than maxAge ago.
func (c *Codec) Validate(token, salt string, maxAge time.Duration) (string, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return c.key(salt), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	if parsed.Context != salt || parsed.IssuedAt == nil {
		return "", ErrInvalidToken
	}
	if c.now().Sub(parsed.IssuedAt.Time) > maxAge {
		return "", ErrExpiredToken
	}
	return parsed.Payload, nil
}

func (c *Codec) key(salt string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(salt))
	return mac.Sum(nil)
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
