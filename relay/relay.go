// Package relay moves customer messages from Chatwoot to Dify and the
// answers back, and mirrors conversation lifecycle into the dialogue table.
package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"
	"github.com/alexbalandi/chatwoot-dify/dify"
	"github.com/alexbalandi/chatwoot-dify/models"
	"github.com/alexbalandi/chatwoot-dify/workers"
)

const (
	TaskRelayMessage = "relay.message"
	TaskRelayReply   = "relay.reply"
	TaskRelayFailed  = "relay.failed"
)

// DefaultAnswer is posted when a successful relay carries no usable answer.
const DefaultAnswer = "I apologize, but I'm temporarily unavailable. Please try again later or wait for a human operator to respond."

// ErrMissingConversationID means Dify answered a conversation-creating
// request without returning the new conversation id.
var ErrMissingConversationID = errors.New("dify response has no conversation id")

type Dialogues interface {
	Upsert(ctx context.Context, in models.DialogueUpsert) (*models.Dialogue, error)
	FindByChatwootID(ctx context.Context, chatwootID string) (*models.Dialogue, error)
	SetDifyConversationID(ctx context.Context, chatwootID, difyID string) (bool, error)
	Delete(ctx context.Context, d *models.Dialogue) error
}

type Assistant interface {
	SendChatMessage(ctx context.Context, req dify.ChatRequest) (*dify.ChatResponse, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

type Helpdesk interface {
	SendMessage(ctx context.Context, conversationID int, msg chatwoot.OutgoingMessage) (*chatwoot.Message, error)
	ToggleStatus(ctx context.Context, conversationID int, status chatwoot.Status) (bool, error)
}

type Submitter interface {
	Submit(ctx context.Context, task string, payload any, opts ...workers.SubmitOption) (workers.Job, error)
}

type Background interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Sentinels are the prefixes of messages the bot posts itself.
type Sentinels []string

func (s Sentinels) Match(text string) bool {
	text = strings.TrimLeft(text, " \t\r\n")
	for _, prefix := range s {
		if prefix != "" && strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// RelayRequest is the payload of a relay.message job.
type RelayRequest struct {
	Message                string `json:"message"`
	DifyConversationID     string `json:"dify_conversation_id,omitempty"`
	ChatwootConversationID string `json:"chatwoot_conversation_id,omitempty"`
	ConversationStatus     string `json:"conversation_status,omitempty"`
	MessageDirection       string `json:"message_direction,omitempty"`
}

// RelayResult is what relay.message hands to relay.reply.
type RelayResult struct {
	Skipped        bool   `json:"skipped,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// ConversationArgs are the link args shared by relay.reply and relay.failed.
type ConversationArgs struct {
	ChatwootConversationID int `json:"chatwoot_conversation_id"`
}
