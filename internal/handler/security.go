package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lojavirtual/orderflow/internal/domain/auth"
	"github.com/lojavirtual/orderflow/internal/domain/order"
	"github.com/lojavirtual/orderflow/pkg/httpmiddleware"
)

type apiKeyCtxKey struct{}

// Security authenticates admin requests with HMAC-SHA256 hashed API keys.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// Authenticate resolves a raw API key. The stored hash is compared in
// constant time against the one computed here.
func (s *Security) Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, auth.ErrUnauthorized
	}
	hexHash := auth.HashKey(key, s.pepper)

	info, err := s.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			return nil, auth.ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	want, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, auth.ErrUnauthorized
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(want, stored) != 1 {
		return nil, auth.ErrUnauthorized
	}
	return info, nil
}

// Require rejects requests without a key granting scope. The admin scope
// implies every other scope.
func (s *Security) Require(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := s.Authenticate(r.Context(), apiKeyFrom(r))
			switch {
			case errors.Is(err, auth.ErrUnauthorized):
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			case err != nil:
				zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
				httpmiddleware.WriteError(w, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}
			if !info.HasScope(scope) && !info.HasScope(auth.ScopeOrdersAdmin) {
				httpmiddleware.WriteError(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyCtxKey{}, info)
			ctx = zctx.With(ctx, zap.String("api_key", info.Name))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// apiKeyFrom reads the key from X-API-Key, api_key or a bearer token.
func apiKeyFrom(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if k := r.Header.Get("api_key"); k != "" {
		return k
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// adminActor is the actor for an authenticated admin request.
func adminActor(ctx context.Context) order.Actor {
	a := order.Actor{Kind: order.ActorAdmin}
	if info, ok := ctx.Value(apiKeyCtxKey{}).(*auth.APIKeyInfo); ok {
		a.ID = info.Name
		if a.ID == "" {
			a.ID = info.ID
		}
	}
	return a
}
