package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/auth"
)

func TestJWTAuth(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	mgr := auth.NewJWTManager(key, "pasto-legal")

	var seen string
	h := NewAuthMiddleware(mgr, zap.NewNop()).JWTAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = Subject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	valid, _, err := mgr.IssueToken("whatsapp-agent", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, call("Bearer "+valid))
	assert.Equal(t, "whatsapp-agent", seen)

	expired, _, err := mgr.IssueToken("whatsapp-agent", -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+expired))

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged, _, err := auth.NewJWTManager(otherKey, "pasto-legal").IssueToken("x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+forged))

	wrongIssuer, _, err := auth.NewJWTManager(key, "someone-else").IssueToken("x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+wrongIssuer))

	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call(valid))
}
