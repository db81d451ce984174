package chatwoot

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type ConversationService struct {
	b *base
}

func (s *ConversationService) GetConversation(ctx context.Context, id int) (*Conversation, error) {
	var out Conversation
	if err := s.b.do(ctx, http.MethodGet, conversationPath(id, ""), true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddLabels returns the conversation's labels after the update.
func (s *ConversationService) AddLabels(ctx context.Context, id int, labels []string) ([]string, error) {
	var out struct {
		Payload []string `json:"payload"`
	}
	body := map[string]any{"labels": labels}
	if err := s.b.do(ctx, http.MethodPost, conversationPath(id, "/labels"), false, body, &out); err != nil {
		return nil, err
	}
	return out.Payload, nil
}

// SetAssignee assigns the conversation to an agent, or unassigns it when agentID is nil.
func (s *ConversationService) SetAssignee(ctx context.Context, id int, agentID *int) error {
	body := map[string]any{"assignee_id": agentID}
	return s.b.do(ctx, http.MethodPost, conversationPath(id, "/assignments"), false, body, nil)
}

// AssignTeam assigns the conversation to a team, or unassigns it when teamID is nil.
func (s *ConversationService) AssignTeam(ctx context.Context, id int, teamID *int) error {
	body := map[string]any{"team_id": teamID}
	return s.b.do(ctx, http.MethodPost, conversationPath(id, "/assignments"), false, body, nil)
}

// UpdateCustomAttributes merges attrs into the conversation's current
// custom attributes and returns the merged set.
func (s *ConversationService) UpdateCustomAttributes(ctx context.Context, id int, attrs map[string]any) (map[string]any, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(conv.CustomAttributes)+len(attrs))
	for k, v := range conv.CustomAttributes {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}

	body := map[string]any{"custom_attributes": merged}
	if err := s.b.do(ctx, http.MethodPost, conversationPath(id, "/custom_attributes"), false, body, nil); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *ConversationService) TogglePriority(ctx context.Context, id int, p Priority) error {
	var value any = string(p)
	if p == PriorityNone || p == "" {
		value = nil
	}
	body := map[string]any{"priority": value}
	return s.b.do(ctx, http.MethodPost, conversationPath(id, "/toggle_priority"), false, body, nil)
}

// ToggleStatus reports the success flag Chatwoot returns.
func (s *ConversationService) ToggleStatus(ctx context.Context, id int, status Status) (bool, error) {
	var out struct {
		Payload struct {
			Success       bool   `json:"success"`
			CurrentStatus string `json:"current_status"`
		} `json:"payload"`
	}
	body := map[string]any{"status": string(status)}
	if err := s.b.do(ctx, http.MethodPost, conversationPath(id, "/toggle_status"), false, body, &out); err != nil {
		return false, err
	}
	return out.Payload.Success, nil
}

func (s *ConversationService) ListConversations(ctx context.Context, f ConversationFilter) ([]Conversation, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.AssigneeType != "" {
		q.Set("assignee_type", f.AssigneeType)
	}
	if f.TeamID != nil {
		q.Set("team_id", strconv.Itoa(*f.TeamID))
	}
	path := "/conversations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Data struct {
			Payload []Conversation `json:"payload"`
		} `json:"data"`
	}
	if err := s.b.do(ctx, http.MethodGet, path, false, nil, &out); err != nil {
		return nil, err
	}
	return out.Data.Payload, nil
}
