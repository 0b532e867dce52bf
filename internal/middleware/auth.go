package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"fanhub/internal/utils"
	pkgutils "fanhub/pkg/utils"
)

const (
	// AuthorizationHeader header carrying the bearer token
	AuthorizationHeader = "Authorization"
	// BearerPrefix Bearer prefix
	BearerPrefix = "Bearer "
	// UserIDKey context key of the caller id
	UserIDKey = "user_id"
	// UserRoleKey context key of the caller role
	UserRoleKey = "user_role"
)

// TokenValidator turns a bearer token into the caller
type TokenValidator func(token string) (*UserInfo, error)

// AuthConfig auth configuration
type AuthConfig struct {
	TokenValidator TokenValidator
	SkipPaths      []string
	// Roles allowed through; empty allows any authenticated caller
	Roles []string
}

// UserInfo is the authenticated caller
type UserInfo struct {
	ID   uint64 `json:"id"`
	Role string `json:"role"`
}

// JWTValidator validates tokens issued by m
func JWTValidator(m *utils.JWTManager) TokenValidator {
	return func(token string) (*UserInfo, error) {
		claims, err := m.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		return &UserInfo{ID: claims.UserID, Role: claims.Role}, nil
	}
}

// Auth requires any authenticated caller
func Auth(validator TokenValidator) gin.HandlerFunc {
	return AuthWithConfig(AuthConfig{
		TokenValidator: validator,
	})
}

// RequireRole requires a caller holding one of roles
func RequireRole(validator TokenValidator, roles ...string) gin.HandlerFunc {
	return AuthWithConfig(AuthConfig{
		TokenValidator: validator,
		Roles:          roles,
	})
}

// AuthWithConfig auth middleware with configuration
func AuthWithConfig(config AuthConfig) gin.HandlerFunc {
	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			pkgutils.AbortWithError(c, pkgutils.NewError(pkgutils.CodeUnauthorized, "missing authorization header"))
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			pkgutils.AbortWithError(c, pkgutils.NewError(pkgutils.CodeUnauthorized, "invalid authorization header format"))
			return
		}
		token := strings.TrimPrefix(authHeader, BearerPrefix)
		if token == "" {
			pkgutils.AbortWithError(c, pkgutils.NewError(pkgutils.CodeUnauthorized, "missing token"))
			return
		}

		userInfo, err := config.TokenValidator(token)
		if err != nil {
			pkgutils.AbortWithError(c, pkgutils.NewError(pkgutils.CodeUnauthorized, "invalid token"))
			return
		}

		if len(config.Roles) > 0 && !hasRole(config.Roles, userInfo.Role) {
			pkgutils.AbortWithError(c, pkgutils.ErrForbidden)
			return
		}

		c.Set(UserIDKey, userInfo.ID)
		c.Set(UserRoleKey, userInfo.Role)
		c.Next()
	}
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetUserID returns the authenticated caller id
func GetUserID(c *gin.Context) (uint64, bool) {
	v, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}

// GetUserRole returns the authenticated caller role
func GetUserRole(c *gin.Context) (string, bool) {
	role, exists := c.Get(UserRoleKey)
	if !exists {
		return "", false
	}
	roleStr, ok := role.(string)
	return roleStr, ok
}
