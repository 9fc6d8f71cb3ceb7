package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sitehq/girder/internal/config"
	"github.com/sitehq/girder/model"
)

// CapabilityResolver maps a role to its granted capability set.
type CapabilityResolver interface {
	Resolve(role string) (model.CapabilitySet, error)
}

// Authenticator verifies bearer tokens and resolves the calling Actor. Tokens
// are HMAC-signed JWTs carrying sub, role, and tenant_id claims.
type Authenticator struct {
	cfg      config.IdentityConfig
	secret   []byte
	resolver CapabilityResolver
	logger   *zap.Logger
}

// NewAuthenticator creates an Authenticator verifying tokens with the given
// shared secret.
func NewAuthenticator(cfg config.IdentityConfig, secret []byte, resolver CapabilityResolver, logger *zap.Logger) *Authenticator {
	return &Authenticator{cfg: cfg, secret: secret, resolver: resolver, logger: logger}
}

// Middleware verifies the Authorization header, resolves the actor's
// capabilities, and stores the Actor in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			WriteError(w, model.NewUnauthorizedError("missing authorization header"))
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			WriteError(w, model.NewUnauthorizedError("invalid authorization header format"))
			return
		}
		tokenStr := auth[7:]

		token, err := jwt.Parse(tokenStr,
			func(*jwt.Token) (any, error) { return a.secret, nil },
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithIssuer(a.cfg.Issuer),
			jwt.WithAudience(a.cfg.Audience),
			jwt.WithLeeway(30*time.Second),
			jwt.WithExpirationRequired(),
		)
		if err != nil {
			WriteError(w, model.NewUnauthorizedError(classifyJWTError(err)))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			WriteError(w, model.NewUnauthorizedError("invalid token"))
			return
		}

		actor := model.Actor{
			ID:       claimString(claims, "sub"),
			Role:     claimString(claims, "role"),
			TenantID: claimString(claims, "tenant_id"),
		}
		if actor.ID == "" || actor.Role == "" {
			WriteError(w, model.NewUnauthorizedError("token missing sub or role claim"))
			return
		}

		caps, err := a.resolver.Resolve(actor.Role)
		if err != nil {
			a.logger.Warn("capability resolution failed",
				zap.String("role", actor.Role),
				zap.Error(err),
			)
			caps = model.CapabilitySet{}
		}
		actor.Capabilities = caps

		next.ServeHTTP(w, r.WithContext(model.WithActor(r.Context(), actor)))
	})
}

func classifyJWTError(err error) string {
	s := err.Error()
	switch {
	case strings.Contains(s, "expired"):
		return "token expired"
	case strings.Contains(s, "issuer"):
		return "invalid token issuer"
	case strings.Contains(s, "audience"):
		return "invalid token audience"
	case strings.Contains(s, "signing method"):
		return "disallowed signing algorithm"
	case strings.Contains(s, "signature"):
		return "invalid token signature"
	default:
		return "invalid token"
	}
}

func claimString(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
