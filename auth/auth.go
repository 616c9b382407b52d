/*
Package auth resolves the caller's ledger identity from an HTTP request.

MODES:
  Bearer:  When a secret is configured, callers present an HS256 JWT in
           "Authorization: Bearer <token>". The subject claim is the
           identity (a wallet address in the original marketplace).
  Header:  Without a secret, the X-Account-ID header is trusted as-is.
           Development only: anyone can claim any identity.

  In bearer mode the header is ignored.

The ledger never authenticates anyone itself; it only compares the
identities this package hands it.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/warp/course-ledger/ledger"
)

// HeaderAccountID carries the caller identity in header mode.
const HeaderAccountID = "X-Account-ID"

var (
	// ErrMissingIdentity is returned when the request carries no identity.
	ErrMissingIdentity = errors.New("missing caller identity")

	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims accepted by the resolver.
type Claims struct {
	jwt.RegisteredClaims
}

// Resolver extracts identities from requests.
type Resolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewResolver returns a bearer-mode resolver when secret is non-empty and
// a header-mode resolver otherwise. An empty issuer accepts any issuer.
func NewResolver(secret, issuer string) *Resolver {
	return &Resolver{
		secret: []byte(secret),
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// BearerMode reports whether tokens are required.
func (r *Resolver) BearerMode() bool { return len(r.secret) > 0 }

// Resolve returns the caller identity for req.
func (r *Resolver) Resolve(req *http.Request) (ledger.Identity, error) {
	if !r.BearerMode() {
		id := ledger.Identity(strings.TrimSpace(req.Header.Get(HeaderAccountID)))
		if id.IsZero() {
			return "", ErrMissingIdentity
		}
		return id, nil
	}

	header := req.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingIdentity
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", ErrInvalidToken
	}
	claims, err := r.ParseAndValidate(token)
	if err != nil {
		return "", err
	}
	return ledger.Identity(claims.Subject), nil
}

// GenerateToken signs a token for subject. Used by tests and dev tooling.
func (r *Resolver) GenerateToken(subject string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	if !r.BearerMode() {
		return "", errors.New("auth secret is not configured")
	}

	now := r.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies the token signature and required claims.
func (r *Resolver) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// =============================================================================
// CONTEXT
// =============================================================================

type ctxKey struct{}

// ContextWithIdentity stores the caller identity in the context.
func ContextWithIdentity(ctx context.Context, id ledger.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) (ledger.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(ledger.Identity)
	if !ok || id.IsZero() {
		return "", false
	}
	return id, true
}

// Middleware resolves the caller on every request. Anonymous requests pass
// through without an identity; a present but invalid token is rejected
// with 401.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id, err := r.Resolve(req)
		switch {
		case err == nil:
			req = req.WithContext(ContextWithIdentity(req.Context(), id))
		case errors.Is(err, ErrMissingIdentity):
		default:
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}
