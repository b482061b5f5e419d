// Package draft issues and checks the optional short-lived token that ties a
// confirm call to the payload returned by evaluate.
package draft

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"incident-dispatch/apperrors"
	"incident-dispatch/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer signs draft tokens. A zero-secret Issuer is disabled.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether tokens are issued and required.
func (i *Issuer) Enabled() bool {
	return i != nil && len(i.secret) > 0
}

// PayloadHash is the hex SHA-256 of the payload's JSON encoding.
func PayloadHash(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Issue returns a token for the given track and payload, or "" when disabled.
func (i *Issuer) Issue(track models.Track, payload any) (string, error) {
	if !i.Enabled() {
		return "", nil
	}
	hash, err := PayloadHash(payload)
	if err != nil {
		return "", err
	}

	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"jti":     uuid.NewString(),
		"track":   string(track),
		"payload": hash,
		"iat":     now.Unix(),
		"exp":     now.Add(i.ttl).Unix(),
	})
	return token.SignedString(i.secret)
}

// Verify checks that tokenString was issued for this track and exactly this
// payload and has not expired. It is a no-op when the issuer is disabled.
// Tokens are not consumed: the same token verifies until it expires.
func (i *Issuer) Verify(tokenString string, track models.Track, payload any) error {
	if !i.Enabled() {
		return nil
	}
	if tokenString == "" {
		return apperrors.Validation("draft_token is required")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperrors.Validation("draft_token has expired")
		}
		return apperrors.Validation("invalid draft_token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return apperrors.Validation("invalid draft_token claims")
	}
	if t, _ := claims["track"].(string); t != string(track) {
		return apperrors.Validation("draft_token was issued for the %s track", t)
	}

	hash, err := PayloadHash(payload)
	if err != nil {
		return err
	}
	if h, _ := claims["payload"].(string); h != hash {
		return apperrors.Validation("report_data does not match the drafted payload")
	}
	return nil
}
