package controllers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/alexbalandi/chatwoot-dify/models"
	"github.com/alexbalandi/chatwoot-dify/tools"

	"github.com/gin-gonic/gin"
)

const SignatureHeader = "X-Chatwoot-Signature"

// POST /api/v1/chatwoot-webhook
func ChatwootWebhook(c *gin.Context) {
	deps, ok := dependencies(c)
	if !ok {
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		RespondError(c, "failed to read body", http.StatusBadRequest)
		return
	}
	if deps.WebhookSecret != "" {
		if err := tools.VerifySHA256Signature(deps.WebhookSecret, raw, c.GetHeader(SignatureHeader)); err != nil {
			deps.logger().Warn("rejected webhook", "error", err, "remote", c.ClientIP())
			RespondError(c, err.Error(), http.StatusUnauthorized)
			return
		}
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var ev models.WebhookEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := deps.Ingestor.Handle(c.Request.Context(), &ev)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "failed to process webhook",
			"detail": err.Error(),
		})
		return
	}
	RespondSuccess(c, res)
}
