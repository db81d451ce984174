package chatwoot

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusSnoozed  Status = "snoozed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusOpen, StatusPending, StatusResolved, StatusSnoozed:
		return st, nil
	}
	return "", fmt.Errorf("invalid conversation status %q", s)
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow, PriorityNone:
		return p, nil
	}
	return "", fmt.Errorf("invalid priority %q", s)
}

type Team struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	AllowAutoAssign bool   `json:"allow_auto_assign,omitempty"`
}

type Agent struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type ConversationMeta struct {
	Assignee *Agent `json:"assignee"`
	Team     *Team  `json:"team"`
}

type Conversation struct {
	ID               int              `json:"id"`
	InboxID          int              `json:"inbox_id"`
	Status           string           `json:"status"`
	Priority         *string          `json:"priority"`
	Labels           []string         `json:"labels"`
	CustomAttributes map[string]any   `json:"custom_attributes"`
	Meta             ConversationMeta `json:"meta"`
}

type Message struct {
	ID                int            `json:"id"`
	Content           string         `json:"content"`
	Private           bool           `json:"private"`
	ConversationID    int            `json:"conversation_id"`
	ContentAttributes map[string]any `json:"content_attributes,omitempty"`
}

// OutgoingMessage is a message posted on behalf of the bot.
type OutgoingMessage struct {
	Content           string
	Private           bool
	Attachments       []string
	ContentAttributes map[string]any
}

type ConversationFilter struct {
	Status       string
	AssigneeType string
	TeamID       *int
}

type AttributeDefinition struct {
	DisplayName string   `json:"attribute_display_name"`
	DisplayType string   `json:"attribute_display_type"`
	Description string   `json:"attribute_description,omitempty"`
	Key         string   `json:"attribute_key"`
	Model       string   `json:"attribute_model"`
	Values      []string `json:"attribute_values,omitempty"`
}
