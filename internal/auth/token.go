package auth

import (
	"errors"
	"slices"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ScopeTranscriptsWrite allows storing transcripts.
const ScopeTranscriptsWrite = "transcripts:write"

const (
	tokenIssuer = "carry-desk"
	clockLeeway = 30 * time.Second
	// refreshMargin is how long before expiry a cached token is replaced.
	refreshMargin = 30 * time.Second
)

var errInvalidClaims = errors.New("invalid token claims")

// TokenManager signs and verifies the HS256 service tokens exchanged
// between the bot and the transcript API.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Claims is the service token payload.
type Claims struct {
	Service string   `json:"svc"`
	Scopes  []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// GenerateToken signs a token for service and returns it with its expiry.
func (tm *TokenManager) GenerateToken(service string, scopes ...string) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(tm.ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Service: service,
		Scopes:  scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   service,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken verifies signature, issuer and expiry. Expired tokens fail
// with an error matching jwt.ErrTokenExpired.
func (tm *TokenManager) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return tm.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Service == "" {
		return nil, errInvalidClaims
	}
	return claims, nil
}

// ServiceTokenSource hands out bearer tokens for one service identity,
// reusing a token until it is close to expiry.
type ServiceTokenSource struct {
	tokens  *TokenManager
	service string
	scopes  []string

	mu      sync.Mutex
	cached  string
	expires time.Time
}

func NewServiceTokenSource(tokens *TokenManager, service string, scopes ...string) *ServiceTokenSource {
	return &ServiceTokenSource{tokens: tokens, service: service, scopes: scopes}
}

func (s *ServiceTokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != "" && s.tokens.now().Add(refreshMargin).Before(s.expires) {
		return s.cached, nil
	}
	token, expires, err := s.tokens.GenerateToken(s.service, s.scopes...)
	if err != nil {
		return "", err
	}
	s.cached, s.expires = token, expires
	return token, nil
}
