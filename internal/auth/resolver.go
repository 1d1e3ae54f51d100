package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCredential covers missing or malformed tokens.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential covers tokens that fail the signature or expiry check.
	ErrExpiredCredential = errors.New("credential expired or forged")
)

// CookieName is the cookie carrying the session token, for both HTTP
// requests and the WebSocket handshake.
const CookieName = "token"

// Identity is a verified (userId, username) pair.
type Identity struct {
	UserID   string
	Username string
}

// Claims represents session token claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Config holds resolver configuration.
type Config struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Issuer   string        `mapstructure:"issuer"`
}

// Resolver issues and verifies session tokens. It is stateless; both the
// HTTP handlers and the WebSocket handshake go through the same Verify
// path so the two call sites cannot drift apart.
type Resolver struct {
	secret   []byte
	tokenTTL time.Duration
	issuer   string
}

// NewResolver creates a Resolver from config.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{
		secret:   []byte(cfg.Secret),
		tokenTTL: cfg.TokenTTL,
		issuer:   cfg.Issuer,
	}
}

// Issue creates a signed session token for the given identity.
func (r *Resolver) Issue(userID, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.tokenTTL)),
		},
		UserID:   userID,
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secret)
}

// Verify validates a raw token and returns the verified identity.
func (r *Resolver) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrInvalidCredential
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Identity{}, ErrExpiredCredential
		}
		return Identity{}, ErrInvalidCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidCredential
	}

	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// FromRequest extracts and verifies the session cookie from a request.
func (r *Resolver) FromRequest(req *http.Request) (Identity, error) {
	cookie, err := req.Cookie(CookieName)
	if err != nil {
		return Identity{}, ErrInvalidCredential
	}
	return r.Verify(cookie.Value)
}
