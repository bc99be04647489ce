package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/logging"
)

type AuthConfig struct {
	JWTSecret string
	// AllowDevUserHeader trusts X-User-Id without a token. Local use only.
	AllowDevUserHeader bool
	Logger             *zap.Logger
}

type principalKey struct{}

func withUser(ctx context.Context, u domain.UserContext) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

// userFromContext returns the caller, or the anonymous user on public routes.
func userFromContext(ctx context.Context) domain.UserContext {
	u, _ := ctx.Value(principalKey{}).(domain.UserContext)
	return u
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if u := userFromContext(ctx); u.Authenticated() {
		return u.UserID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func authenticateJWT(token string, secret string) (domain.UserContext, error) {
	if strings.TrimSpace(secret) == "" {
		return domain.UserContext{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return domain.UserContext{}, err
	}
	if !parsed.Valid {
		return domain.UserContext{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return domain.UserContext{}, errors.New("subject claim required")
	}
	return domain.UserContext{UserID: claims.Subject}, nil
}

// IssueToken signs an HS256 token whose subject is userID.
func IssueToken(secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   "pcengine",
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):          true,
		path.Join(basePath, "github/callback"): true,
		path.Join(basePath, "openapi.json"):    true,
	}
	logger := logging.OrNop(cfg.Logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			devUser := strings.TrimSpace(req.Header.Get("X-User-Id"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				user, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					logger.Debug("rejected bearer token", zap.Error(err))
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withUser(req.Context(), user)))
				return
			}

			if devUser != "" && cfg.AllowDevUserHeader {
				logger.Warn("using X-User-Id header without auth; ignored when Authorization is present", zap.String("user_id", devUser))
				next.ServeHTTP(w, req.WithContext(withUser(req.Context(), domain.UserContext{UserID: devUser})))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
