package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"
	"github.com/alexbalandi/chatwoot-dify/models"
	"github.com/alexbalandi/chatwoot-dify/relay"

	"github.com/gin-gonic/gin"
)

const depsKey = "deps"

type Ingestor interface {
	Handle(ctx context.Context, ev *models.WebhookEvent) (relay.Result, error)
}

type Helpdesk interface {
	SendMessage(ctx context.Context, conversationID int, msg chatwoot.OutgoingMessage) (*chatwoot.Message, error)
	GetConversation(ctx context.Context, id int) (*chatwoot.Conversation, error)
	AddLabels(ctx context.Context, id int, labels []string) ([]string, error)
	SetAssignee(ctx context.Context, id int, agentID *int) error
	AssignTeam(ctx context.Context, id int, teamID *int) error
	UpdateCustomAttributes(ctx context.Context, id int, attrs map[string]any) (map[string]any, error)
	TogglePriority(ctx context.Context, id int, p chatwoot.Priority) error
	ToggleStatus(ctx context.Context, id int, status chatwoot.Status) (bool, error)
	ListConversations(ctx context.Context, f chatwoot.ConversationFilter) ([]chatwoot.Conversation, error)
	ListTeams(ctx context.Context) ([]chatwoot.Team, error)
	CreateCustomAttributeDefinition(ctx context.Context, def chatwoot.AttributeDefinition) (map[string]any, error)
}

type Dialogues interface {
	FindByChatwootID(ctx context.Context, chatwootID string) (*models.Dialogue, error)
	FindByDifyID(ctx context.Context, difyID string) (*models.Dialogue, error)
}

type Teams interface {
	Resolve(ctx context.Context, name string) (int, bool, error)
	ForceRefresh(ctx context.Context) (int, error)
	Names() []string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies is what the handlers need, injected per request by SetDependencies.
type Dependencies struct {
	Ingestor  Ingestor
	Chatwoot  Helpdesk
	Dialogues Dialogues
	Teams     Teams
	Database  Pinger
	Assistant Pinger
	// WebhookSecret enables signature checks on the webhook when set.
	WebhookSecret string
	Logger        *slog.Logger
}

func SetDependencies(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(depsKey, deps)
		c.Next()
	}
}

func DependenciesInstance(c *gin.Context) *Dependencies {
	v, ok := c.Get(depsKey)
	if !ok {
		return nil
	}
	deps, _ := v.(*Dependencies)
	return deps
}

func dependencies(c *gin.Context) (*Dependencies, bool) {
	deps := DependenciesInstance(c)
	if deps == nil {
		RespondError(c, "dependencies not configured", http.StatusInternalServerError)
		return nil, false
	}
	return deps, true
}

func (d *Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
