package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/auth"
	"github.com/xelth-com/commissariat/internal/metrics"
	"github.com/xelth-com/commissariat/internal/models"
	"github.com/xelth-com/commissariat/internal/policy"
)

type stubVerifier map[string]auth.Identity

func (s stubVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return auth.Identity{}, apperrors.Unauthorized("invalid token")
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, id auth.Identity) (policy.Actor, error) {
	if id.AccountID == "gone" {
		return policy.Actor{}, apperrors.Unauthorized("account no longer exists")
	}
	return policy.Actor{ID: id.AccountID, Role: id.Role}, nil
}

func TestRequire(t *testing.T) {
	authn := NewAuthenticator(stubVerifier{
		"good": {AccountID: "u1", Role: models.RoleDeclarant},
		"gone": {AccountID: "gone", Role: models.RoleDeclarant},
	}, stubResolver{})

	var seen policy.Actor
	handler := authn.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		id, ok := IdentityFrom(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "u1", id.AccountID)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"Valid", "Bearer good", http.StatusNoContent},
		{"LowercaseScheme", "bearer good", http.StatusNoContent},
		{"Missing", "", http.StatusUnauthorized},
		{"WrongScheme", "Basic good", http.StatusUnauthorized},
		{"BadToken", "Bearer nope", http.StatusUnauthorized},
		{"DeletedAccount", "Bearer gone", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "u1", seen.ID)
}

func TestLoggingAndMetrics(t *testing.T) {
	m := metrics.New("test")
	log := logrus.New()
	log.SetOutput(io.Discard)

	r := mux.NewRouter()
	r.Use(Logging(logrus.NewEntry(log)), Metrics(m))
	r.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestCounter.WithLabelValues("/items/{id}", "GET", "418")))
}
