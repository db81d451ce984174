package controllers

type SendMessageRequest struct {
	ConversationID    int            `json:"conversation_id" binding:"required,gt=0"`
	Message           string         `json:"message" binding:"required"`
	IsPrivate         bool           `json:"is_private"`
	Attachments       []string       `json:"attachments" binding:"omitempty,dive,url"`
	ContentAttributes map[string]any `json:"content_attributes"`
}

type LabelsRequest struct {
	Labels []string `json:"labels" binding:"required"`
}

type CustomAttributesRequest struct {
	CustomAttributes map[string]any `json:"custom_attributes"`
}

type PriorityRequest struct {
	Priority string `json:"priority" binding:"required"`
}

type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// TeamRequest names the team to assign; "none" or empty unassigns.
type TeamRequest struct {
	Team string `json:"team"`
}

// AssignRequest carries the agent id; null unassigns.
type AssignRequest struct {
	AssigneeID *int `json:"assignee_id"`
}

type AttributeDefinitionRequest struct {
	DisplayName string   `json:"attribute_display_name" binding:"required"`
	DisplayType string   `json:"attribute_display_type" binding:"required"`
	Description string   `json:"attribute_description"`
	Key         string   `json:"attribute_key" binding:"required"`
	Model       string   `json:"attribute_model"`
	Values      []string `json:"attribute_values"`
}
