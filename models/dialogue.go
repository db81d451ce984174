package models

import "time"

/************************************************
/**** MARK: DIALOGUE STATUS ****/
/************************************************/
const DIALOGUE_STATUS_OPEN = "open"
const DIALOGUE_STATUS_PENDING = "pending"
const DIALOGUE_STATUS_RESOLVED = "resolved"
const DIALOGUE_STATUS_SNOOZED = "snoozed"

// Dialogue maps one Chatwoot conversation to at most one Dify conversation.
// DifyConversationID is write-once: it is only stored while still empty.
type Dialogue struct {
	ID                     string     `gorm:"primary_key;type:varchar(36)" json:"id"`
	ChatwootConversationID string     `gorm:"column:chatwoot_conversation_id;not null;unique_index" json:"chatwoot_conversation_id"`
	DifyConversationID     *string    `gorm:"column:dify_conversation_id;index" json:"dify_conversation_id"`
	Status                 string     `gorm:"column:status;not null;default:'pending'" json:"status"`
	AssigneeID             *int64     `gorm:"column:assignee_id" json:"assignee_id"`
	CreatedAt              *time.Time `json:"created_at"`
	UpdatedAt              *time.Time `json:"updated_at"`
}

// HasDifyConversation reports whether the dialogue is already bound to a Dify session.
func (d *Dialogue) HasDifyConversation() bool {
	return d != nil && d.DifyConversationID != nil && *d.DifyConversationID != ""
}

// DifyConversation returns the bound Dify conversation id or "".
func (d *Dialogue) DifyConversation() string {
	if !d.HasDifyConversation() {
		return ""
	}
	return *d.DifyConversationID
}

// DialogueUpsert carries the mutable fields mirrored from a webhook.
type DialogueUpsert struct {
	ChatwootConversationID string
	Status                 string
	AssigneeID             *int64
}
