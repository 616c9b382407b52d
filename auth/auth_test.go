package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
)

func TestResolve_HeaderMode(t *testing.T) {
	r := NewResolver("", "")
	require.False(t, r.BearerMode())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := r.Resolve(req)
	assert.ErrorIs(t, err, ErrMissingIdentity)

	req.Header.Set(HeaderAccountID, " 0xB0B ")
	id, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, ledger.Identity("0xB0B"), id)
}

func TestResolve_BearerMode(t *testing.T) {
	r := NewResolver("test-secret", "course-ledger")
	token, err := r.GenerateToken("0xA11CE", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAccountID, "0xMALLORY")
	_, err = r.Resolve(req)
	assert.ErrorIs(t, err, ErrMissingIdentity, "header is ignored in bearer mode")

	req.Header.Set("Authorization", "Bearer "+token)
	id, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, ledger.Identity("0xA11CE"), id)
}

func TestParseAndValidate_Rejections(t *testing.T) {
	r := NewResolver("test-secret", "course-ledger")
	other := NewResolver("other-secret", "course-ledger")
	wrongIssuer := NewResolver("test-secret", "someone-else")

	forged, err := other.GenerateToken("alice", time.Hour)
	require.NoError(t, err)
	misissued, err := wrongIssuer.GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	past := NewResolver("test-secret", "course-ledger")
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "alice", Issuer: "course-ledger", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"wrong secret": forged,
		"wrong issuer": misissued,
		"expired":      expired,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.ParseAndValidate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestMiddleware(t *testing.T) {
	r := NewResolver("test-secret", "")
	var seen ledger.Identity
	var present bool
	h := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen, present = IdentityFromContext(req.Context())
	}))

	t.Run("anonymous passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, present)
	})

	t.Run("valid token sets identity", func(t *testing.T) {
		token, err := r.GenerateToken("carol", time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, present)
		assert.Equal(t, ledger.Identity("carol"), seen)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGenerateToken_Validation(t *testing.T) {
	_, err := NewResolver("", "").GenerateToken("alice", time.Hour)
	assert.Error(t, err)

	r := NewResolver("s", "")
	_, err = r.GenerateToken(" ", time.Hour)
	assert.Error(t, err)
	_, err = r.GenerateToken("alice", 0)
	assert.Error(t, err)
}
