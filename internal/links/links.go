// Package links issues and verifies the signed URLs participants use to record their own
// fittings without an account.
package links

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "taller"

// ErrInvalidLink is returned for tokens that are expired, tampered with or malformed.
var ErrInvalidLink = errors.New("invalid or expired fitting link")

// Claims identify the project a link grants access to.
type Claims struct {
	ProjectID string `json:"pid"`
	jwt.RegisteredClaims
}

// Signer creates and verifies HS256 fitting link tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer. ttl is the default lifetime of issued links.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("links: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("links: ttl must be positive")
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a link for projectID. It returns the token and its expiry.
func (s *Signer) Issue(projectID string) (string, time.Time, error) {
	if projectID == "" {
		return "", time.Time{}, errors.New("links: project id is required")
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		ProjectID: projectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   projectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign fitting link: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies token and returns the project it names.
func (s *Signer) Parse(token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if !parsed.Valid || claims.ProjectID == "" {
		return "", ErrInvalidLink
	}
	return claims.ProjectID, nil
}
