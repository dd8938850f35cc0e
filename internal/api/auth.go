package api

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrWong99/tickvox/internal/executor"
	"github.com/MrWong99/tickvox/internal/observe"
)

// Claims are the token claims tickvox reads. The subject is the user ID.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthConfig configures an [Authenticator].
type AuthConfig struct {
	// Secret is the HMAC key tokens are signed with.
	Secret string

	// Issuer and Audience are enforced when non-empty.
	Issuer   string
	Audience string

	// Disabled skips verification and attributes every request to DevUser.
	Disabled bool
	DevUser  string
}

// Authenticator verifies HS256/384/512 bearer tokens. Token issuance lives
// outside this service; [SignToken] exists for development and tests.
type Authenticator struct {
	cfg    AuthConfig
	parser *jwt.Parser
}

// NewAuthenticator validates cfg and returns an Authenticator.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if !cfg.Disabled && cfg.Secret == "" {
		return nil, errors.New("api: auth secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// ErrUnauthenticated is returned by [Authenticator.Verify] for missing or
// rejected tokens.
var ErrUnauthenticated = errors.New("api: unauthenticated")

// Verify parses a raw token and returns the user it identifies.
func (a *Authenticator) Verify(raw string) (executor.User, error) {
	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.Secret), nil
	})
	if err != nil {
		return executor.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return executor.User{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return executor.User{
		ID:    claims.Subject,
		Name:  cmp.Or(claims.Name, claims.Subject),
		Email: claims.Email,
	}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// user in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Disabled {
			u := executor.User{ID: a.cfg.DevUser, Name: a.cfg.DevUser}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		u, err := a.Verify(raw)
		if err != nil {
			slog.Debug("token rejected", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// SignToken issues an HS256 token for user valid for ttl.
func SignToken(secret string, user executor.User, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type userKey struct{}

// WithUser returns a context carrying u. Logs and spans derived from it
// are tagged with the user ID.
func WithUser(ctx context.Context, u executor.User) context.Context {
	ctx = observe.WithUserID(ctx, u.ID)
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the authenticated user stored by [Authenticator.Middleware].
func UserFrom(ctx context.Context) (executor.User, bool) {
	u, ok := ctx.Value(userKey{}).(executor.User)
	return u, ok
}
