package models

import (
	"strconv"
	"strings"
)

/************************************************
/**** MARK: WEBHOOK EVENTS ****/
/************************************************/
const WEBHOOK_EVENT_MESSAGE_CREATED = "message_created"
const WEBHOOK_EVENT_CONVERSATION_CREATED = "conversation_created"
const WEBHOOK_EVENT_CONVERSATION_UPDATED = "conversation_updated"
const WEBHOOK_EVENT_CONVERSATION_DELETED = "conversation_deleted"

const MESSAGE_TYPE_INCOMING = "incoming"
const MESSAGE_TYPE_OUTGOING = "outgoing"

type WebhookSender struct {
	ID    *int64 `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Type  string `json:"type,omitempty"`
}

type WebhookAssignee struct {
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type WebhookConversationMeta struct {
	Assignee *WebhookAssignee `json:"assignee"`
	Sender   *WebhookSender   `json:"sender,omitempty"`
}

type WebhookConversation struct {
	ID               int64                    `json:"id"`
	Status           string                   `json:"status"`
	InboxID          *int64                   `json:"inbox_id,omitempty"`
	Meta             *WebhookConversationMeta `json:"meta,omitempty"`
	Labels           []string                 `json:"labels,omitempty"`
	CustomAttributes map[string]any           `json:"custom_attributes,omitempty"`
}

type WebhookMessage struct {
	ID           int64                `json:"id"`
	Content      string               `json:"content"`
	MessageType  string               `json:"message_type"`
	Conversation *WebhookConversation `json:"conversation"`
	Sender       *WebhookSender       `json:"sender"`
}

// WebhookEvent is the envelope Chatwoot posts to the agent bot webhook.
type WebhookEvent struct {
	Event        string               `json:"event" binding:"required"`
	MessageType  string               `json:"message_type" binding:"omitempty,oneof=incoming outgoing"`
	Sender       *WebhookSender       `json:"sender"`
	Message      *WebhookMessage      `json:"message"`
	Conversation *WebhookConversation `json:"conversation"`
	Content      string               `json:"content"`
	EchoID       string               `json:"echo_id"`
}

// ConversationID prefers the message's conversation over the top-level one.
func (e *WebhookEvent) ConversationID() (int64, bool) {
	if e.Message != nil && e.Message.Conversation != nil && e.Message.Conversation.ID > 0 {
		return e.Message.Conversation.ID, true
	}
	if e.Conversation != nil && e.Conversation.ID > 0 {
		return e.Conversation.ID, true
	}
	return 0, false
}

func (e *WebhookEvent) conversation() *WebhookConversation {
	if e.Conversation != nil {
		return e.Conversation
	}
	if e.Message != nil {
		return e.Message.Conversation
	}
	return nil
}

// DialogueStatus is the top-level conversation status, "open" when the
// event carries none. The nested message conversation is not consulted.
func (e *WebhookEvent) DialogueStatus() string {
	if e.Conversation == nil {
		return DIALOGUE_STATUS_OPEN
	}
	if s := strings.TrimSpace(e.Conversation.Status); s != "" {
		return s
	}
	return DIALOGUE_STATUS_OPEN
}

func (e *WebhookEvent) AssigneeID() *int64 {
	conv := e.conversation()
	if conv == nil || conv.Meta == nil || conv.Meta.Assignee == nil {
		return nil
	}
	id := conv.Meta.Assignee.ID
	return &id
}

func (e *WebhookEvent) SenderType() string {
	if e.Sender != nil {
		return e.Sender.Type
	}
	if e.Message != nil && e.Message.Sender != nil {
		return e.Message.Sender.Type
	}
	return ""
}

// Text is the top-level content, falling back to the nested message.
func (e *WebhookEvent) Text() string {
	if e.Content != "" {
		return e.Content
	}
	if e.Message != nil {
		return e.Message.Content
	}
	return ""
}

func (e *WebhookEvent) Direction() string {
	if e.MessageType != "" {
		return e.MessageType
	}
	if e.Message != nil {
		return e.Message.MessageType
	}
	return ""
}

// ToDialogueUpsert derives the dialogue fields mirrored from the event.
func (e *WebhookEvent) ToDialogueUpsert() (DialogueUpsert, bool) {
	id, ok := e.ConversationID()
	if !ok {
		return DialogueUpsert{}, false
	}
	return DialogueUpsert{
		ChatwootConversationID: strconv.FormatInt(id, 10),
		Status:                 e.DialogueStatus(),
		AssigneeID:             e.AssigneeID(),
	}, true
}
