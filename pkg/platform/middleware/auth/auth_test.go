package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dab/pkg/domain"
	"dab/pkg/platform/httputil"
	"dab/pkg/requestcontext"
)

type stubValidator struct {
	claims *CallerClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*CallerClaims, error) {
	return s.claims, s.err
}

func serve(t *testing.T, validator TokenValidator, opts Options, headers map[string]string) (*httptest.ResponseRecorder, id.Identity) {
	t.Helper()
	var seen id.Identity
	h := RequireCaller(validator, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestcontext.Caller(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireCaller(t *testing.T) {
	valid := stubValidator{claims: &CallerClaims{Caller: "alice"}}

	t.Run("bearer token resolves caller", func(t *testing.T) {
		rec, caller := serve(t, valid, Options{}, map[string]string{"Authorization": "Bearer tok"})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, id.Identity("alice"), caller)
	})

	t.Run("invalid token is unauthorized", func(t *testing.T) {
		rec, _ := serve(t, stubValidator{err: errors.New("bad")}, Options{}, map[string]string{"Authorization": "Bearer tok"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		var body httputil.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unauthorized", body.Error)
	})

	t.Run("missing credentials are unauthorized", func(t *testing.T) {
		rec, _ := serve(t, valid, Options{}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("caller header ignored unless trusted", func(t *testing.T) {
		rec, _ := serve(t, valid, Options{}, map[string]string{CallerHeader: "bob"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("trusted caller header", func(t *testing.T) {
		rec, caller := serve(t, nil, Options{TrustCallerHeader: true}, map[string]string{CallerHeader: "bob"})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, id.Identity("bob"), caller)
	})

	t.Run("bearer wins over header", func(t *testing.T) {
		_, caller := serve(t, valid, Options{TrustCallerHeader: true}, map[string]string{
			"Authorization": "Bearer tok",
			CallerHeader:    "bob",
		})
		assert.Equal(t, id.Identity("alice"), caller)
	})

	t.Run("malformed caller is unauthorized", func(t *testing.T) {
		rec, _ := serve(t, nil, Options{TrustCallerHeader: true}, map[string]string{CallerHeader: "not an identity"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
