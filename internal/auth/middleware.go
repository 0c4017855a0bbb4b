package auth

import (
	"errors"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"

	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

const principalKey = "auth_principal"

var (
	errMissingHeader = apperrors.NewUnauthorized("missing authorization header")
	errBadScheme     = apperrors.NewUnauthorized("invalid authorization header")
	errBadToken      = apperrors.NewUnauthorized("invalid token")
	errExpiredToken  = apperrors.NewUnauthorized("token expired")
	errNoPrincipal   = apperrors.NewUnauthorized("authentication required")
	errScope         = apperrors.NewForbidden("insufficient scope")
)

// Principal is the calling service a bearer token was issued to.
type Principal struct {
	Service string
	Scopes  []string
}

func (p *Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// AuthMiddleware turns a service bearer token into a Principal.
type AuthMiddleware struct {
	tokens *TokenManager
}

func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle rejects requests without a valid bearer token.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	claims, err := m.tokens.ParseToken(raw)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errExpiredToken
	case err != nil:
		return errBadToken
	}
	c.Locals(principalKey, &Principal{Service: claims.Service, Scopes: claims.Scopes})
	return c.Next()
}

// RequireScope lets the request through only when the authenticated
// principal was granted scope. It must run after Handle.
func RequireScope(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return errNoPrincipal
		}
		if !principal.HasScope(scope) {
			return errScope.WithDetails(map[string]any{"required": scope})
		}
		return c.Next()
	}
}

func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errBadScheme
	}
	return strings.TrimSpace(token), nil
}
