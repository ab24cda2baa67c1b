package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/auth"
	"github.com/xelth-com/commissariat/internal/policy"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
	actorContextKey    contextKey = "actor"
)

// TokenVerifier checks a bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// ActorResolver loads the account behind a verified token
type ActorResolver interface {
	Resolve(ctx context.Context, id auth.Identity) (policy.Actor, error)
}

// Authenticator turns bearer tokens into request actors
type Authenticator struct {
	tokens   TokenVerifier
	accounts ActorResolver
}

func NewAuthenticator(tokens TokenVerifier, accounts ActorResolver) *Authenticator {
	return &Authenticator{tokens: tokens, accounts: accounts}
}

// Require rejects requests without a valid bearer token and stores the
// identity and actor in the request context
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx, err := a.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate verifies token and returns ctx carrying the identity and actor
func (a *Authenticator) Authenticate(ctx context.Context, token string) (context.Context, error) {
	id, err := a.tokens.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	actor, err := a.accounts.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, identityContextKey, id)
	return context.WithValue(ctx, actorContextKey, actor), nil
}

// ActorFrom returns the authenticated actor of a request
func ActorFrom(ctx context.Context) (policy.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(policy.Actor)
	return actor, ok
}

// IdentityFrom returns the verified token identity of a request
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(auth.Identity)
	return id, ok
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.Unauthorized("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.Unauthorized("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
