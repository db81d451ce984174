package controllers

import (
	"errors"
	"net/http"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"

	"github.com/gin-gonic/gin"
)

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(200, payload)
}

// RespondUpstreamError maps a Chatwoot failure to 404 or 502.
func RespondUpstreamError(c *gin.Context, err error) {
	if errors.Is(err, chatwoot.ErrNotFound) {
		RespondError(c, err.Error(), http.StatusNotFound)
		return
	}
	RespondError(c, err.Error(), http.StatusBadGateway)
}
