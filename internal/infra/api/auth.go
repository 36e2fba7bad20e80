package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"compat-assistant/internal/infra/logging"
)

const tokenIssuer = "compat-assistant"

var errMissingToken = errors.New("missing token")

// ClientClaims identify an API client.
type ClientClaims struct {
	jwt.RegisteredClaims
}

// Authenticator mints and checks HS256 bearer tokens for the API.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Mint returns a signed token for subject. A zero ttl mints a token that
// never expires.
func (a *Authenticator) Mint(subject string) (string, error) {
	now := a.now()
	claims := ClientClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseFromRequest reads "Authorization: Bearer <jwt>". Event streams opened
// by browsers cannot set headers, so an access_token query parameter is
// accepted too.
func (a *Authenticator) ParseFromRequest(r *http.Request) (*ClientClaims, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
		return nil, errMissingToken
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return a.parse(tok)
	}
	return nil, errMissingToken
}

func (a *Authenticator) parse(tok string) (*ClientClaims, error) {
	claims := &ClientClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RequireToken rejects requests without a valid bearer token.
func RequireToken(a *Authenticator, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				l := logging.With(r.Context(), logger)
				l.Debug().Err(err).Msg("unauthorized request")
				w.Header().Set("WWW-Authenticate", `Bearer realm="compat-assistant"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			l := logging.With(r.Context(), logger)
			l.Trace().Str("client", claims.Subject).Msg("authenticated")
			next.ServeHTTP(w, r)
		})
	}
}
