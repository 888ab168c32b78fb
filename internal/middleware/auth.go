package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"bazaar/internal/utils"
	pkgutils "bazaar/pkg/utils"
)

const (
	// AuthorizationHeader authentication header name
	AuthorizationHeader = "Authorization"
	// BearerPrefix Bearer prefix
	BearerPrefix = "Bearer "
	// UserKeyKey user key in the request context
	UserKeyKey = "user_key"
	// UserRoleKey user role in the request context
	UserRoleKey = "user_role"
	// UsernameKey username in the request context
	UsernameKey = "username"
)

// TokenValidator validates an access token and returns its claims
type TokenValidator func(token string) (*utils.JWTClaims, error)

// Auth authentication middleware
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, validator)
		if !ok {
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// RequireRole authentication middleware restricted to one role
func RequireRole(validator TokenValidator, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, validator)
		if !ok {
			return
		}
		if claims.Role != role {
			pkgutils.Error(c, pkgutils.CodeForbidden, "Insufficient permissions")
			c.Abort()
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth sets claims when a valid token is present, otherwise the
// request proceeds as a guest
func OptionalAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		if claims, err := validator(token); err == nil {
			setClaims(c, claims)
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, validator TokenValidator) (*utils.JWTClaims, bool) {
	header := c.GetHeader(AuthorizationHeader)
	if header == "" {
		pkgutils.Error(c, pkgutils.CodeUnauthorized, "Missing authorization header")
		c.Abort()
		return nil, false
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		pkgutils.Error(c, pkgutils.CodeUnauthorized, "Invalid authorization header format")
		c.Abort()
		return nil, false
	}

	token := strings.TrimPrefix(header, BearerPrefix)
	claims, err := validator(token)
	if err != nil {
		pkgutils.Error(c, pkgutils.CodeUnauthorized, "Invalid token")
		c.Abort()
		return nil, false
	}
	return claims, true
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(header, BearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(header, BearerPrefix)
}

func setClaims(c *gin.Context, claims *utils.JWTClaims) {
	c.Set(UserKeyKey, claims.UserKey)
	c.Set(UserRoleKey, claims.Role)
	c.Set(UsernameKey, claims.Username)
}

// GetUserKey returns the authenticated user's key from the context
func GetUserKey(c *gin.Context) (string, bool) {
	v, exists := c.Get(UserKeyKey)
	if !exists {
		return "", false
	}
	key, ok := v.(string)
	return key, ok && key != ""
}

// GetUserRole returns the authenticated user's role from the context
func GetUserRole(c *gin.Context) (string, bool) {
	v, exists := c.Get(UserRoleKey)
	if !exists {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
