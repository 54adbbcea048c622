// Package verifytoken signs and checks the short-lived tokens embedded in
// SMS verification links.
package verifytoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultMaxAge is the validity window of a verification link.
const DefaultMaxAge = 30 * time.Minute

// Allowed clock drift for tokens issued by another instance.
const futureSkew = time.Minute

var (
	ErrInvalidToken = errors.New("invalid or expired link")
	ErrExpiredToken = fmt.Errorf("%w: token expired", ErrInvalidToken)
)

// Claims binds a member to one POS ticket at one location.
type Claims struct {
	Member   string `json:"m"`
	Location string `json:"l"`
	Ticket   string `json:"t"`
	jwt.RegisteredClaims
}

// IssuedTime returns the issuance time, or the zero time when absent.
func (c *Claims) IssuedTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

type Codec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func NewCodec(secret string, opts ...Option) *Codec {
	c := &Codec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue signs (member, location, ticket) with the current time. It has no
// side effects.
func (c *Codec) Issue(member, location, ticket string) (string, error) {
	if member == "" || location == "" || ticket == "" {
		return "", errors.New("member, location and ticket are required")
	}
	claims := &Claims{
		Member:   member,
		Location: location,
		Ticket:   ticket,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(c.now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign verification token: %w", err)
	}
	return token, nil
}

// Validate checks the signature and that the token is at most maxAge old.
// Every failure matches ErrInvalidToken; age failures also match
// ErrExpiredToken.
func (c *Codec) Validate(token string, maxAge time.Duration) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Member == "" || claims.Location == "" || claims.Ticket == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	now := c.now()
	issued := claims.IssuedAt.Time
	if issued.After(now.Add(futureSkew)) {
		return nil, ErrInvalidToken
	}
	if now.Sub(issued) > maxAge {
		return nil, ErrExpiredToken
	}
	return claims, nil
}
