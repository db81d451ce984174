package router

import (
	"log/slog"

	"github.com/alexbalandi/chatwoot-dify/config"
	"github.com/alexbalandi/chatwoot-dify/controllers"
	"github.com/alexbalandi/chatwoot-dify/middleware"

	"github.com/gin-gonic/gin"
)

// Initialize wires all routes and middlewares.
// The webhook and health routes are public; actions sit behind Authorizer.
func Initialize(r *gin.Engine, cfg config.Configuration, deps *controllers.Dependencies, logger *slog.Logger) {
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.Cors.AllowedOrigins))
	r.Use(controllers.SetDependencies(deps))

	api := r.Group("/api/v1")
	api.Use(Logger(logger))

	api.GET("/health", controllers.Health)
	api.POST("/chatwoot-webhook", controllers.ChatwootWebhook)

	actions := api.Group("/actions")
	actions.Use(Authorizer(cfg.Actions.Token))

	actions.POST("/send-chatwoot-message", controllers.SendChatwootMessage)
	actions.POST("/update-labels/:conversation_id", controllers.UpdateLabels)
	actions.POST("/update-custom-attributes/:conversation_id", controllers.UpdateCustomAttributes)
	actions.POST("/toggle-priority/:conversation_id", controllers.TogglePriority)
	actions.POST("/toggle-status/:conversation_id", controllers.ToggleStatus)
	actions.POST("/assign-team/:conversation_id", controllers.AssignTeam)
	actions.POST("/assign/:conversation_id", controllers.Assign)
	actions.POST("/refresh-teams", controllers.RefreshTeams)
	actions.POST("/custom-attribute-definitions", controllers.CreateCustomAttributeDefinition)

	// Conversations (Chatwoot proxy and local dialogue lookups)
	actions.GET("/conversations", controllers.ListConversations)
	actions.GET("/conversations/:conversation_id", controllers.GetConversation)
	actions.GET("/conversations/dify/:dify_conversation_id", controllers.GetDialogueByDifyID)
	actions.GET("/dialogue-info/:conversation_id", controllers.GetDialogueInfo)

	logger.Info("routes initialized")
}
