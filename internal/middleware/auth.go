package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/logger"
)

type actorCtxKey struct{}

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// actorClaims is the JWT payload: sub is the user id, role one of
// landlord, tenant or admin.
type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier issues and validates HS256 actor tokens.
type TokenVerifier struct {
	secret func() string
	issuer string
}

// NewTokenVerifier creates a verifier for a fixed HMAC secret.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return NewRotatingTokenVerifier(func() string { return secret }, issuer)
}

// NewRotatingTokenVerifier reads the HMAC secret on every call, so a
// rotated key takes effect immediately. Tokens signed with the old key
// stop verifying at that point.
func NewRotatingTokenVerifier(secret func() string, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: secret, issuer: issuer}
}

func (v *TokenVerifier) key() ([]byte, error) {
	k := v.secret()
	if k == "" {
		return nil, errors.New("signing key not configured")
	}
	return []byte(k), nil
}

// Issue signs a token for the actor valid for ttl.
func (v *TokenVerifier) Issue(a lease.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, actorClaims{
		Role: string(a.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	key, err := v.key()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// Verify parses raw and returns the actor it names.
func (v *TokenVerifier) Verify(raw string) (lease.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &actorClaims{}, func(*jwt.Token) (any, error) {
		return v.key()
	}, opts...)
	if err != nil {
		return lease.Actor{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*actorClaims)
	if !ok || !parsed.Valid {
		return lease.Actor{}, errors.New("invalid token claims")
	}
	return actorFrom(claims.Subject, claims.Role)
}

// Auth returns middleware that resolves the acting user. With a verifier the
// actor comes from a Bearer token (or ?token= on /ws); with a nil verifier
// (dev mode) it is read from the X-User-ID and X-User-Role headers.
func Auth(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			var (
				actor lease.Actor
				err   error
			)
			switch {
			case verifier == nil:
				actor, err = actorFrom(r.Header.Get(headerUserID), r.Header.Get(headerUserRole))
			case r.URL.Path == "/ws" && r.URL.Query().Get("token") != "":
				actor, err = verifier.Verify(r.URL.Query().Get("token"))
			default:
				authHeader := r.Header.Get("Authorization")
				token := strings.TrimPrefix(authHeader, "Bearer ")
				if authHeader == "" || token == authHeader {
					err = errors.New("authorization required")
					break
				}
				actor, err = verifier.Verify(token)
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// WithActor stores the actor in the context and tags its log records.
func WithActor(ctx context.Context, a lease.Actor) context.Context {
	ctx = logger.WithActor(ctx, string(a.Role)+":"+a.ID)
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (lease.Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(lease.Actor)
	return a, ok
}

func actorFrom(id, role string) (lease.Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return lease.Actor{}, errors.New("missing user id")
	}
	r, err := lease.ParseRole(role)
	if err != nil {
		return lease.Actor{}, fmt.Errorf("invalid role %q", role)
	}
	return lease.Actor{ID: id, Role: r}, nil
}

// writeError writes the API error envelope.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"kind": kind, "message": msg})
}
