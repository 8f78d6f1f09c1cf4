package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

var _ core.Authenticator = (*JWTAuthenticator)(nil)

// JWTAuthenticator verifies HS256 bearer tokens minted by the account service.
type JWTAuthenticator struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

// claims is the token body. The username is the subject unless an explicit
// username claim is present.
type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Admin    bool   `json:"admin,omitempty"`
}

func NewJWTAuthenticator(secret, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{Secret: []byte(secret), Issuer: issuer, Now: time.Now}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, credential string) (*domain.User, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if credential == "" {
		return nil, errors.New("credential is required")
	}
	if len(a.Secret) == 0 {
		return nil, errors.New("authenticator is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	if a.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(a.Now))
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(credential, &parsed, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return nil, mapJWTError(err)
	}

	username := parsed.Username
	if username == "" {
		username = parsed.Subject
	}
	user, err := domain.NewUser(username, parsed.Admin)
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}
	return user, nil
}

// Issue mints a token for the given user. It backs the -issue-token flag and tests.
func (a *JWTAuthenticator) Issue(username string, admin bool, ttl time.Duration) (string, error) {
	if _, err := domain.NewUser(username, admin); err != nil {
		return "", err
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	issuedAt := now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    a.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		Admin: admin,
	})
	return tok.SignedString(a.Secret)
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.New("token is expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.New("token signature is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return errors.New("token issuer mismatch")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return errors.New("token alg is invalid")
	default:
		return fmt.Errorf("token is invalid: %w", err)
	}
}
