package middleware

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"clinic-frontdesk-server/internal/config"
	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/utils"
)

// ContextStaff holds the *utils.Claims of the signed-in staff member.
const ContextStaff = "staff"

var (
	errNoCredentials = errors.New("authorization header required")
	errNotBearer     = errors.New(`authorization header must be "Bearer <token>"`)
)

// AuthMiddleware admits requests carrying a valid staff access token and
// records the caller's claims for the handlers behind it.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			utils.Unauthorized(c, err.Error())
			return
		}
		claims, err := utils.ValidateToken(token, cfg.JWTSecret)
		if err != nil {
			utils.Unauthorized(c, "Invalid token: "+err.Error())
			return
		}
		c.Set(ContextStaff, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", errNotBearer
	}
	return token, nil
}

// RoleAuthMiddleware lets through the given staff roles only. Mounted
// without AuthMiddleware in front it fails every request with 500.
func RoleAuthMiddleware(allowed ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		staff, ok := staffFromContext(c)
		if !ok {
			utils.InternalServerError(c, "staff identity missing; route is not behind AuthMiddleware")
			return
		}
		if !slices.Contains(allowed, staff.Role) {
			utils.Forbidden(c, fmt.Sprintf("role %q may not perform this action", staff.Role))
			return
		}
		c.Next()
	}
}

func staffFromContext(c *gin.Context) (*utils.Claims, bool) {
	v, ok := c.Get(ContextStaff)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*utils.Claims)
	return claims, ok && claims != nil
}

// GetUserIDFromContext returns the ID of the signed-in staff member.
func GetUserIDFromContext(c *gin.Context) (uint, bool) {
	staff, ok := staffFromContext(c)
	if !ok {
		return 0, false
	}
	return staff.UserID, true
}
