package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexbalandi/chatwoot-dify/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var ErrDialogueNotFound = errors.New("dialogue not found")

// DialogueStore persists dialogues keyed by Chatwoot conversation id.
type DialogueStore struct {
	db *gorm.DB
}

func NewDialogueStore(db *gorm.DB) *DialogueStore {
	return &DialogueStore{db: db}
}

// Upsert creates the dialogue for in.ChatwootConversationID or updates its
// status and assignee in place. The Dify conversation id is never touched.
func (s *DialogueStore) Upsert(ctx context.Context, in models.DialogueUpsert) (*models.Dialogue, error) {
	chatwootID := strings.TrimSpace(in.ChatwootConversationID)
	if chatwootID == "" {
		return nil, errors.New("upsert dialogue: chatwoot conversation id is required")
	}
	if in.Status == "" {
		in.Status = models.DIALOGUE_STATUS_PENDING
	}

	existing, err := s.FindByChatwootID(ctx, chatwootID)
	if err == nil {
		return s.update(existing, in)
	}
	if !errors.Is(err, ErrDialogueNotFound) {
		return nil, err
	}

	d := &models.Dialogue{
		ID:                     uuid.NewString(),
		ChatwootConversationID: chatwootID,
		Status:                 in.Status,
		AssigneeID:             in.AssigneeID,
	}
	if err := s.db.Create(d).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("create dialogue %s: %w", chatwootID, err)
		}
		// lost the insert race against another webhook for the same conversation
		existing, ferr := s.FindByChatwootID(ctx, chatwootID)
		if ferr != nil {
			return nil, ferr
		}
		return s.update(existing, in)
	}
	return d, nil
}

func (s *DialogueStore) update(d *models.Dialogue, in models.DialogueUpsert) (*models.Dialogue, error) {
	err := s.db.Model(d).Updates(map[string]any{
		"status":      in.Status,
		"assignee_id": in.AssigneeID,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update dialogue %s: %w", d.ChatwootConversationID, err)
	}
	return d, nil
}

func (s *DialogueStore) FindByChatwootID(ctx context.Context, chatwootID string) (*models.Dialogue, error) {
	return s.findOne("chatwoot_conversation_id = ?", chatwootID)
}

func (s *DialogueStore) FindByDifyID(ctx context.Context, difyID string) (*models.Dialogue, error) {
	if difyID == "" {
		return nil, ErrDialogueNotFound
	}
	return s.findOne("dify_conversation_id = ?", difyID)
}

func (s *DialogueStore) findOne(query string, arg any) (*models.Dialogue, error) {
	var d models.Dialogue
	if err := s.db.Where(query, arg).First(&d).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, ErrDialogueNotFound
		}
		return nil, fmt.Errorf("find dialogue: %w", err)
	}
	return &d, nil
}

// SetDifyConversationID binds the dialogue to a Dify conversation only if
// it is not bound yet. It reports whether the value was written.
func (s *DialogueStore) SetDifyConversationID(ctx context.Context, chatwootID, difyID string) (bool, error) {
	if difyID == "" {
		return false, errors.New("set dify conversation: empty id")
	}
	res := s.db.Model(&models.Dialogue{}).
		Where("chatwoot_conversation_id = ?", chatwootID).
		Where("dify_conversation_id IS NULL OR dify_conversation_id = ''").
		Updates(map[string]any{"dify_conversation_id": difyID})
	if res.Error != nil {
		return false, fmt.Errorf("set dify conversation for %s: %w", chatwootID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Delete hard-deletes the dialogue row.
func (s *DialogueStore) Delete(ctx context.Context, d *models.Dialogue) error {
	if d == nil || d.ID == "" {
		return errors.New("delete dialogue: missing id")
	}
	if err := s.db.Where("id = ?", d.ID).Delete(&models.Dialogue{}).Error; err != nil {
		return fmt.Errorf("delete dialogue %s: %w", d.ChatwootConversationID, err)
	}
	return nil
}

func (s *DialogueStore) Ping(ctx context.Context) error {
	return s.db.DB().PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
