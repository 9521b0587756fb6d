package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/amoylab/webconsole/internal/common/config"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidAlgorithm = errors.New("invalid signing algorithm")
	ErrEmptySecretKey   = errors.New("secret key cannot be empty")
)

// Claims represents the JWT claims
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver takes the principal from an HS256 token carried in a request
// header or a cookie.
type JWTResolver struct {
	secret []byte
	header string
	cookie string
}

var _ Resolver = (*JWTResolver)(nil)

// NewJWTResolver creates a resolver from the auth configuration
func NewJWTResolver(cfg config.JWTConfig) (*JWTResolver, error) {
	if cfg.SecretKey == "" {
		return nil, ErrEmptySecretKey
	}
	header := cfg.Header
	if header == "" {
		header = "Authorization"
	}
	return &JWTResolver{
		secret: []byte(cfg.SecretKey),
		header: header,
		cookie: cfg.Cookie,
	}, nil
}

// GenerateToken issues a token for p valid for d.
func (s *JWTResolver) GenerateToken(p Principal, d time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: p.Name,
		Roles:    p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Name,
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a JWT token
func (s *JWTResolver) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAlgorithm
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Resolve implements Resolver. Requests without any token are anonymous,
// requests with an invalid token fail.
func (s *JWTResolver) Resolve(r *http.Request) (Principal, error) {
	raw := s.tokenFrom(r)
	if raw == "" {
		return Principal{}, nil
	}
	claims, err := s.ValidateToken(raw)
	if err != nil {
		return Principal{}, err
	}
	name := claims.Username
	if name == "" {
		name = claims.Subject
	}
	return Principal{Name: name, Roles: claims.Roles}, nil
}

func (s *JWTResolver) tokenFrom(r *http.Request) string {
	if v := r.Header.Get(s.header); v != "" {
		return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	if s.cookie != "" {
		if c, err := r.Cookie(s.cookie); err == nil {
			return c.Value
		}
	}
	return ""
}

// NewResolver creates the resolver selected by cfg.Type.
func NewResolver(cfg config.AuthConfig) (Resolver, error) {
	switch cfg.Type {
	case "jwt":
		return NewJWTResolver(cfg.JWT)
	default:
		return AnonymousResolver{}, nil
	}
}
