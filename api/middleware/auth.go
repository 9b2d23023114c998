package middleware

import (
	"net/http"
	"strings"

	"github.com/novamart/orderflow/api/responses"
	pkgauth "github.com/novamart/orderflow/pkg/auth"
	"github.com/novamart/orderflow/pkg/config"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
)

const guestTokenHeader = "X-Guest-Token"

// Auth validates a bearer token and seeds the request context with the actor.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := actorFromRequest(cfg, r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithActor(r.Context(), actor)
			ctx = WithOwnerKey(ctx, "user:"+actor.UserID.String())
			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.UserID.String())
				ctx = logg.WithActorRole(ctx, actor.Role.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves an actor when credentials are present but also admits
// guests. Guests must carry a guest session token so their cart has a stable
// owner key.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) != "" {
				actor, err := actorFromRequest(cfg, r)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				ctx := WithActor(r.Context(), actor)
				ctx = WithOwnerKey(ctx, "user:"+actor.UserID.String())
				if logg != nil {
					ctx = logg.WithUserID(ctx, actor.UserID.String())
					ctx = logg.WithActorRole(ctx, actor.Role.String())
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			guestToken := strings.TrimSpace(r.Header.Get(guestTokenHeader))
			if guestToken == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "credentials or a guest token are required"))
				return
			}

			ctx := WithOwnerKey(r.Context(), "guest:"+guestToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromRequest(cfg config.JWTConfig, r *http.Request) (pkgauth.Actor, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return pkgauth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	token := raw
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return pkgauth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	claims, err := pkgauth.ParseAccessToken(cfg, token)
	if err != nil {
		return pkgauth.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	return pkgauth.Actor{UserID: claims.UserID, Role: claims.Role}, nil
}
