package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amoylab/webconsole/internal/common/config"
)

func TestPrincipal(t *testing.T) {
	p := Principal{Name: "alice", Roles: []string{"admin"}}
	assert.True(t, p.HasRole("admin"))
	assert.False(t, p.HasRole("user"))
	assert.False(t, p.Anonymous())
	assert.True(t, Principal{}.Anonymous())
}

func TestJWTResolver_HeaderAndCookie(t *testing.T) {
	s, err := NewJWTResolver(config.JWTConfig{SecretKey: "secret", Cookie: "token"})
	require.NoError(t, err)
	tok, err := s.GenerateToken(Principal{Name: "alice", Roles: []string{"admin"}}, time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	p, err := s.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.Equal(t, []string{"admin"}, p.Roles)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "token", Value: tok})
	p, err = s.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
}

func TestJWTResolver_Anonymous(t *testing.T) {
	s, err := NewJWTResolver(config.JWTConfig{SecretKey: "secret"})
	require.NoError(t, err)
	p, err := s.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.True(t, p.Anonymous())
}

func TestJWTResolver_ExpiredAndInvalid(t *testing.T) {
	s, err := NewJWTResolver(config.JWTConfig{SecretKey: "secret"})
	require.NoError(t, err)
	tok, err := s.GenerateToken(Principal{Name: "bob"}, -time.Second)
	require.NoError(t, err)

	_, err = s.ValidateToken(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	_, err = s.Resolve(r)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewResolver(t *testing.T) {
	r, err := NewResolver(config.AuthConfig{Type: "anonymous"})
	require.NoError(t, err)
	assert.IsType(t, AnonymousResolver{}, r)

	_, err = NewResolver(config.AuthConfig{Type: "jwt"})
	assert.ErrorIs(t, err, ErrEmptySecretKey)
}
