package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"
	"github.com/alexbalandi/chatwoot-dify/db"
	"github.com/alexbalandi/chatwoot-dify/dify"
	"github.com/alexbalandi/chatwoot-dify/models"
	"github.com/alexbalandi/chatwoot-dify/workers"
)

const (
	StatusSkipped    = "skipped"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
)

// Result is the webhook response body.
type Result struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Event      string `json:"event,omitempty"`
	Message    string `json:"message,omitempty"`
	DialogueID string `json:"dialogue_id,omitempty"`
	JobID      string `json:"job_id,omitempty"`
}

type IngestorConfig struct {
	Sentinels      Sentinels
	BotSenderTypes []string
	// OpenedMessage is posted when a message could not be queued.
	OpenedMessage string
}

type Ingestor struct {
	dialogues  Dialogues
	jobs       Submitter
	helpdesk   Helpdesk
	assistant  Assistant
	background Background
	cfg        IngestorConfig
	logger     *slog.Logger
}

func NewIngestor(dialogues Dialogues, jobs Submitter, helpdesk Helpdesk, assistant Assistant, background Background, cfg IngestorConfig, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		dialogues:  dialogues,
		jobs:       jobs,
		helpdesk:   helpdesk,
		assistant:  assistant,
		background: background,
		cfg:        cfg,
		logger:     logger.With("component", "ingestor"),
	}
}

// Handle routes one Chatwoot webhook event. A returned error means the
// event was not accepted and the caller should answer 500.
func (i *Ingestor) Handle(ctx context.Context, ev *models.WebhookEvent) (Result, error) {
	switch ev.Event {
	case models.WEBHOOK_EVENT_MESSAGE_CREATED:
		return i.onMessage(ctx, ev)
	case models.WEBHOOK_EVENT_CONVERSATION_CREATED, models.WEBHOOK_EVENT_CONVERSATION_UPDATED:
		return i.onConversation(ctx, ev)
	case models.WEBHOOK_EVENT_CONVERSATION_DELETED:
		return i.onDeleted(ctx, ev)
	}
	i.logger.Debug("ignoring webhook event", "event", ev.Event)
	return Result{Status: StatusSuccess, Event: ev.Event}, nil
}

func (i *Ingestor) isBotSender(senderType string) bool {
	for _, t := range i.cfg.BotSenderTypes {
		if t == senderType {
			return true
		}
	}
	return false
}

func (i *Ingestor) onMessage(ctx context.Context, ev *models.WebhookEvent) (Result, error) {
	if senderType := ev.SenderType(); senderType != "" && i.isBotSender(senderType) {
		return Result{Status: StatusSkipped, Reason: "agent bot message"}, nil
	}
	text := ev.Text()
	if i.cfg.Sentinels.Match(text) {
		return Result{Status: StatusSkipped, Reason: "bot message"}, nil
	}
	up, ok := ev.ToDialogueUpsert()
	if !ok {
		return Result{Status: StatusSkipped, Reason: "no conversation"}, nil
	}
	conversationID, _ := ev.ConversationID()

	dialogue, err := i.dialogues.Upsert(ctx, up)
	if err != nil {
		return i.fail(ctx, conversationID, fmt.Errorf("upsert dialogue: %w", err))
	}

	req := RelayRequest{
		Message:                text,
		DifyConversationID:     dialogue.DifyConversation(),
		ChatwootConversationID: up.ChatwootConversationID,
		ConversationStatus:     dialogue.Status,
		MessageDirection:       ev.Direction(),
	}
	args := ConversationArgs{ChatwootConversationID: int(conversationID)}
	job, err := i.jobs.Submit(ctx, TaskRelayMessage, req,
		workers.Then(TaskRelayReply, args),
		workers.Catch(TaskRelayFailed, args),
	)
	if err != nil {
		return i.fail(ctx, conversationID, fmt.Errorf("enqueue relay: %w", err))
	}

	i.logger.Info("message queued for relay",
		"chatwoot_conversation_id", up.ChatwootConversationID,
		"dialogue_id", dialogue.ID,
		"job_id", job.ID,
	)
	return Result{Status: StatusProcessing, DialogueID: dialogue.ID, JobID: job.ID}, nil
}

// fail tells the customer an operator will take over. The notice is
// best-effort and cause is returned either way.
func (i *Ingestor) fail(ctx context.Context, conversationID int64, cause error) (Result, error) {
	logger := i.logger.With("chatwoot_conversation_id", conversationID)
	logger.Error("could not accept message", "error", cause)
	if _, err := i.helpdesk.SendMessage(ctx, int(conversationID), chatwoot.OutgoingMessage{Content: i.cfg.OpenedMessage}); err != nil {
		logger.Error("could not post handover notice", "error", err)
	}
	return Result{}, cause
}

func (i *Ingestor) onConversation(ctx context.Context, ev *models.WebhookEvent) (Result, error) {
	up, ok := ev.ToDialogueUpsert()
	if !ok {
		return Result{Status: StatusSkipped, Reason: "no conversation"}, nil
	}
	dialogue, err := i.dialogues.Upsert(ctx, up)
	if err != nil {
		return Result{}, fmt.Errorf("%s: upsert dialogue: %w", ev.Event, err)
	}
	i.logger.Debug("dialogue synced", "event", ev.Event, "chatwoot_conversation_id", up.ChatwootConversationID, "status", dialogue.Status)
	return Result{Status: StatusSuccess, Event: ev.Event, DialogueID: dialogue.ID}, nil
}

func (i *Ingestor) onDeleted(ctx context.Context, ev *models.WebhookEvent) (Result, error) {
	conversationID, ok := ev.ConversationID()
	if !ok {
		return Result{Status: StatusSkipped, Reason: "no conversation"}, nil
	}
	chatwootID := strconv.FormatInt(conversationID, 10)

	dialogue, err := i.dialogues.FindByChatwootID(ctx, chatwootID)
	if errors.Is(err, db.ErrDialogueNotFound) {
		return Result{Status: StatusSkipped, Reason: "dialogue not found"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("conversation_deleted: %w", err)
	}

	if dialogue.HasDifyConversation() {
		difyID := dialogue.DifyConversation()
		i.background.Go("delete dify conversation "+difyID, func(ctx context.Context) error {
			err := i.assistant.DeleteConversation(ctx, difyID)
			if errors.Is(err, dify.ErrConversationNotFound) {
				return nil
			}
			return err
		})
	}

	if err := i.dialogues.Delete(ctx, dialogue); err != nil {
		return Result{}, fmt.Errorf("conversation_deleted: %w", err)
	}
	i.logger.Info("dialogue deleted", "chatwoot_conversation_id", chatwootID, "dialogue_id", dialogue.ID)
	return Result{Status: StatusSuccess, Event: ev.Event, Message: "dialogue deleted", DialogueID: dialogue.ID}, nil
}
