package chatwoot

import (
	"context"
	"net/http"
)

// AdminService covers account-level resources read with the admin token.
type AdminService struct {
	b *base
}

func (s *AdminService) ListTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := s.b.do(ctx, http.MethodGet, "/teams", true, nil, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

func (s *AdminService) CreateCustomAttributeDefinition(ctx context.Context, def AttributeDefinition) (map[string]any, error) {
	if def.Model == "" {
		def.Model = "conversation_attribute"
	}
	var out map[string]any
	if err := s.b.do(ctx, http.MethodPost, "/custom_attribute_definitions", true, def, &out); err != nil {
		return nil, err
	}
	return out, nil
}
