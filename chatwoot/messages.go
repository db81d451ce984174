package chatwoot

import (
	"context"
	"net/http"
)

type MessageService struct {
	b *base
}

// SendMessage posts an outgoing message. Attachments are sent as
// [{"resource_url": url}] objects.
func (s *MessageService) SendMessage(ctx context.Context, conversationID int, msg OutgoingMessage) (*Message, error) {
	body := map[string]any{
		"content":      msg.Content,
		"message_type": "outgoing",
		"private":      msg.Private,
	}
	if len(msg.ContentAttributes) > 0 {
		body["content_attributes"] = msg.ContentAttributes
	}
	if len(msg.Attachments) > 0 {
		atts := make([]map[string]string, 0, len(msg.Attachments))
		for _, u := range msg.Attachments {
			atts = append(atts, map[string]string{"resource_url": u})
		}
		body["attachments"] = atts
	}

	var out Message
	if err := s.b.do(ctx, http.MethodPost, conversationPath(conversationID, "/messages"), false, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
