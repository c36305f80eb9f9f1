package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/retailstock/internal/platform/httpx"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

// ErrInvalidToken indicates a missing, malformed or expired bearer token.
var ErrInvalidToken = errors.New("invalid or expired token")

type actorClaims struct {
	jwtlib.RegisteredClaims
	Permissions []string `json:"perms"`
}

// Authenticator verifies bearer tokens issued by the identity service.
type Authenticator struct {
	secret []byte
	logger *slog.Logger
}

// NewAuthenticator constructs an HS256 verifier.
func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), logger: logger}
}

// Parse validates the token and returns the actor it names.
func (a *Authenticator) Parse(tokenStr string) (shared.Actor, error) {
	claims := &actorClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return shared.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return shared.Actor{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return shared.Actor{}, fmt.Errorf("%w: subject must be a numeric actor id", ErrInvalidToken)
	}
	return shared.Actor{ID: id, Permissions: normalizePermissions(claims.Permissions)}, nil
}

// Issue signs a token for actor. Used by development tooling and tests.
func (a *Authenticator) Issue(actor shared.Actor, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := actorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
		Permissions: actor.Permissions,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware places the authenticated actor in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		actor, err := a.Parse(strings.TrimSpace(raw))
		if err != nil {
			if a.logger != nil {
				a.logger.Info("reject bearer token", slog.Any("error", err))
			}
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err))
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}
