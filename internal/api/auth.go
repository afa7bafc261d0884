package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/access"
)

// Claims identify the caller. The subject is the actor id; the role must match
// the stored actor so a stale token cannot carry a different role.
type Claims struct {
	jwt.RegisteredClaims
	Role access.Role `json:"role"`
}

type AuthConfig struct {
	Secret []byte
	Issuer string
}

// ActorResolver loads the current state of an actor.
type ActorResolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (access.Actor, error)
}

// IssueToken signs an HS256 token for the actor.
func IssueToken(cfg AuthConfig, actor access.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: actor.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// AuthMiddleware verifies the bearer token and stores the resolved actor in the
// request context. Approval is not checked here; access control denies
// unapproved or disabled actors per operation.
func AuthMiddleware(cfg AuthConfig, resolver ActorResolver) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid authorization format")
				return
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(parts[1], claims, func(*jwt.Token) (any, error) {
				return cfg.Secret, nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}

			id, err := uuid.Parse(claims.Subject)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "token subject is not an actor id")
				return
			}
			actor, err := resolver.Resolve(r.Context(), id)
			if err != nil {
				if isNotFound(err) {
					writeError(w, http.StatusUnauthorized, "unauthenticated", "unknown actor")
					return
				}
				handleError(w, r, err)
				return
			}
			if actor.Role != claims.Role {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "token role does not match actor")
				return
			}

			if info, ok := r.Context().Value(requestKey).(*requestInfo); ok {
				info.actorID = actor.ID
			}
			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the authenticated actor.
func ActorFromContext(ctx context.Context) (access.Actor, bool) {
	a, ok := ctx.Value(actorKey).(access.Actor)
	return a, ok
}

var errNoActor = errors.New("no authenticated actor")

func mustActor(r *http.Request) (access.Actor, error) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		return access.Actor{}, errNoActor
	}
	return a, nil
}
