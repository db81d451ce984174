package router

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/alexbalandi/chatwoot-dify/controllers"

	"github.com/gin-gonic/gin"
)

// Authorizer requires "Authorization: Bearer <token>" when token is set.
func Authorizer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		provided, found := strings.CutPrefix(header, "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), []byte(token)) != 1 {
			controllers.RespondError(c, "unauthorized", http.StatusUnauthorized)
			c.Abort()
			return
		}

		c.Next()
	}
}
