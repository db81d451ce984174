package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"
	"github.com/alexbalandi/chatwoot-dify/dify"
	"github.com/alexbalandi/chatwoot-dify/workers"
)

type State string

const (
	StateStarted          State = "STARTED"
	StateCallingAssistant State = "CALLING_ASSISTANT"
	StateSuccess          State = "SUCCESS"
	StateRetrying         State = "RETRYING"
	StateFailed           State = "FAILED"
)

type PipelineConfig struct {
	Sentinels Sentinels
	// ErrorMessage is the public apology posted on terminal failure.
	ErrorMessage   string
	MaxAttempts    int
	RetryCountdown time.Duration
	Timeout        time.Duration
}

// Pipeline owns the relay.message, relay.reply and relay.failed tasks.
// Terminal failures are announced to the customer by GiveUp only;
// relay.failed just records them.
type Pipeline struct {
	assistant Assistant
	helpdesk  Helpdesk
	dialogues Dialogues
	cfg       PipelineConfig
	logger    *slog.Logger
}

func NewPipeline(assistant Assistant, helpdesk Helpdesk, dialogues Dialogues, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Pipeline{
		assistant: assistant,
		helpdesk:  helpdesk,
		dialogues: dialogues,
		cfg:       cfg,
		logger:    logger.With("component", "relay"),
	}
}

func (p *Pipeline) Register(s *workers.Scheduler) {
	s.Register(workers.Task{
		Name:        TaskRelayMessage,
		Run:         p.Run,
		Decide:      p.Decide,
		GiveUp:      p.GiveUp,
		MaxAttempts: p.cfg.MaxAttempts,
		Countdown:   p.cfg.RetryCountdown,
		Timeout:     p.cfg.Timeout,
	})
	s.Register(workers.Task{Name: TaskRelayReply, Run: p.Reply, MaxAttempts: 1, Timeout: p.cfg.Timeout})
	s.Register(workers.Task{Name: TaskRelayFailed, Run: p.Failed, MaxAttempts: 1})
}

func (p *Pipeline) Run(ctx context.Context, job workers.Job) (any, error) {
	var req RelayRequest
	if err := job.Decode(&req); err != nil {
		return nil, fmt.Errorf("decode relay request: %w", err)
	}
	logger := p.logger.With("job_id", job.ID, "attempt", job.Attempt, "chatwoot_conversation_id", req.ChatwootConversationID)
	logger.Debug("relay state", "state", StateStarted)

	if p.cfg.Sentinels.Match(req.Message) {
		logger.Info("skipping bot-generated message")
		return RelayResult{Skipped: true, Reason: "bot message"}, nil
	}

	logger.Debug("relay state", "state", StateCallingAssistant, "dify_conversation_id", req.DifyConversationID)
	resp, err := p.assistant.SendChatMessage(ctx, dify.ChatRequest{
		Query: req.Message,
		Inputs: map[string]any{
			"chatwoot_conversation_id": req.ChatwootConversationID,
			"conversation_status":      req.ConversationStatus,
			"message_direction":        req.MessageDirection,
		},
		ConversationID: req.DifyConversationID,
	})
	if err != nil {
		return nil, err
	}

	if req.DifyConversationID == "" {
		if resp.ConversationID == "" {
			return nil, ErrMissingConversationID
		}
		if req.ChatwootConversationID != "" {
			p.bind(ctx, logger, req.ChatwootConversationID, resp.ConversationID)
		}
	}

	logger.Debug("relay state", "state", StateSuccess)
	return RelayResult{
		Answer:         resp.Answer,
		ConversationID: resp.ConversationID,
		MessageID:      resp.MessageID,
	}, nil
}

// bind stores the new Dify conversation unless the dialogue already has one.
func (p *Pipeline) bind(ctx context.Context, logger *slog.Logger, chatwootID, difyID string) {
	written, err := p.dialogues.SetDifyConversationID(ctx, chatwootID, difyID)
	switch {
	case err != nil:
		logger.Error("could not store dify conversation id", "dify_conversation_id", difyID, "error", err)
	case !written:
		logger.Info("dialogue already bound, keeping existing dify conversation", "ignored_dify_conversation_id", difyID)
	default:
		logger.Info("dialogue bound to dify conversation", "dify_conversation_id", difyID)
	}
}

// Decide retries only an expired session on a known id, or a creation call
// that came back without an id.
func (p *Pipeline) Decide(job workers.Job, err error) workers.Decision {
	var req RelayRequest
	if derr := job.Decode(&req); derr != nil {
		return workers.DecisionFail
	}
	known := req.DifyConversationID != ""

	decision := workers.DecisionFail
	switch {
	case known && errors.Is(err, dify.ErrConversationNotFound):
		decision = workers.DecisionRetry
	case !known && errors.Is(err, ErrMissingConversationID):
		decision = workers.DecisionRetry
	}
	if decision == workers.DecisionRetry && job.Attempt < p.cfg.MaxAttempts {
		p.logger.Debug("relay state", "state", StateRetrying, "job_id", job.ID, "attempt", job.Attempt)
	}
	return decision
}

// GiveUp reopens the Chatwoot conversation for a human and apologizes once.
// Both calls are best-effort.
func (p *Pipeline) GiveUp(ctx context.Context, job workers.Job, cause error) {
	var req RelayRequest
	if err := job.Decode(&req); err != nil {
		p.logger.Error("relay failed with undecodable request", "job_id", job.ID, "error", cause)
		return
	}
	logger := p.logger.With("job_id", job.ID, "chatwoot_conversation_id", req.ChatwootConversationID)
	logger.Error("relay state", "state", StateFailed, "attempts", job.Attempt, "error", cause)

	conversationID, err := strconv.Atoi(req.ChatwootConversationID)
	if err != nil || conversationID <= 0 {
		logger.Warn("no chatwoot conversation to notify")
		return
	}

	if _, err := p.helpdesk.ToggleStatus(ctx, conversationID, chatwoot.StatusOpen); err != nil {
		logger.Error("could not reopen conversation", "error", err)
	}
	if _, err := p.helpdesk.SendMessage(ctx, conversationID, chatwoot.OutgoingMessage{Content: p.cfg.ErrorMessage}); err != nil {
		logger.Error("could not post apology", "error", err)
	}
}

func (p *Pipeline) Reply(ctx context.Context, job workers.Job) (any, error) {
	var in workers.SuccessPayload
	if err := job.Decode(&in); err != nil {
		return nil, fmt.Errorf("decode reply payload: %w", err)
	}
	var args ConversationArgs
	if len(in.Args) > 0 {
		if err := json.Unmarshal(in.Args, &args); err != nil {
			return nil, fmt.Errorf("decode reply args: %w", err)
		}
	}
	if args.ChatwootConversationID <= 0 {
		return nil, errors.New("reply: missing chatwoot conversation id")
	}
	logger := p.logger.With("job_id", job.ID, "parent_id", in.ParentID, "chatwoot_conversation_id", args.ChatwootConversationID)

	answer, skipped := extractAnswer(in.Result)
	if skipped {
		logger.Debug("nothing to relay for skipped message")
		return map[string]string{"status": "skipped"}, nil
	}

	msg, err := p.helpdesk.SendMessage(ctx, args.ChatwootConversationID, chatwoot.OutgoingMessage{Content: answer})
	if err != nil {
		logger.Error("reply delivery failed", "error", err)
		return nil, fmt.Errorf("deliver reply: %w", err)
	}
	logger.Info("reply delivered", "message_id", msg.ID)
	return map[string]any{"status": "sent", "message_id": msg.ID}, nil
}

func extractAnswer(raw json.RawMessage) (answer string, skipped bool) {
	var r struct {
		Skipped bool    `json:"skipped"`
		Answer  *string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return DefaultAnswer, false
	}
	if r.Skipped {
		return "", true
	}
	if r.Answer == nil || strings.TrimSpace(*r.Answer) == "" {
		return DefaultAnswer, false
	}
	return *r.Answer, false
}

func (p *Pipeline) Failed(ctx context.Context, job workers.Job) (any, error) {
	var in workers.FailurePayload
	if err := job.Decode(&in); err != nil {
		return nil, fmt.Errorf("decode failure payload: %w", err)
	}
	var args ConversationArgs
	if len(in.Args) > 0 {
		if err := json.Unmarshal(in.Args, &args); err != nil {
			p.logger.Warn("decode failure args", "job_id", job.ID, "parent_id", in.ParentID, "error", err)
		}
	}
	p.logger.Error("relay job failed",
		"parent_id", in.ParentID,
		"task", in.Task,
		"chatwoot_conversation_id", args.ChatwootConversationID,
		"request", string(in.Request),
		"attempts", in.Attempts,
		"error", in.Error,
	)
	return nil, nil
}
