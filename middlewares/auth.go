package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"retail-order-service/utils"
)

// AuthMiddleware validates the bearer token issued by the external auth
// service and exposes the caller's user id to handlers. Token issuance and
// account management live outside this service.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		userID, err := utils.ParseToken(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
