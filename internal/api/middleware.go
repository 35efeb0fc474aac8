package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/yixuanzhou/student-portal-server/internal/models"
	"github.com/yixuanzhou/student-portal-server/internal/service"
)

// AuthMiddleware returns a Gin middleware guarding every idea and
// marketplace route. It accepts either a Bearer JWT issued at login or the
// Basic token the original portal client sends (base64 username:password).
func AuthMiddleware(svc service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authentication required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 {
			abortUnauthorized(c, "Invalid token format")
			return
		}

		switch parts[0] {
		case "Bearer":
			authenticateBearer(c, svc, parts[1])
		case "Basic":
			authenticateBasic(c, svc, parts[1])
		default:
			abortUnauthorized(c, "Unsupported authorization scheme")
		}
	}
}

// authenticateBearer validates the token signature, then resolves the
// subject against the user store. A token outliving its account is rejected
// and the role always reflects the current database state, not the claim.
func authenticateBearer(c *gin.Context, svc service.Service, tokenString string) {
	jwtSecret := c.MustGet("jwtSecret").([]byte)
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return jwtSecret, nil
	})

	if err != nil || !token.Valid {
		abortUnauthorized(c, "Invalid token")
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		abortUnauthorized(c, "Invalid token claims")
		return
	}

	username, ok := claims["sub"].(string)
	if !ok {
		abortUnauthorized(c, "Invalid subject in token")
		return
	}

	user, err := svc.GetUser(c.Request.Context(), username)
	if err != nil {
		abortUnauthorized(c, "Unknown user")
		return
	}

	c.Set("username", user.Username)
	c.Set("role", user.Role)
	c.Next()
}

func authenticateBasic(c *gin.Context, svc service.Service, encoded string) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		abortUnauthorized(c, "Invalid token format")
		return
	}

	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		abortUnauthorized(c, "Invalid token format")
		return
	}

	user, err := svc.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		abortUnauthorized(c, "Invalid credentials")
		return
	}

	c.Set("username", user.Username)
	c.Set("role", user.Role)
	c.Next()
}

// AdminRequired gates marketplace item management. It must run after
// AuthMiddleware.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, models.ErrorResponse{
				Status:  "error",
				Code:    "FORBIDDEN",
				Message: "Admin role required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Status:  "error",
		Code:    "UNAUTHORIZED",
		Message: message,
	})
	c.Abort()
}
