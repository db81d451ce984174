package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"
	"github.com/alexbalandi/chatwoot-dify/db"

	"github.com/gin-gonic/gin"
)

// POST /api/v1/actions/send-chatwoot-message
func SendChatwootMessage(c *gin.Context) {
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := deps.Chatwoot.SendMessage(c.Request.Context(), req.ConversationID, chatwoot.OutgoingMessage{
		Content:           req.Message,
		Private:           req.IsPrivate,
		Attachments:       req.Attachments,
		ContentAttributes: req.ContentAttributes,
	})
	if err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"status": "success", "conversation_id": req.ConversationID, "message_id": msg.ID})
}

// POST /api/v1/actions/update-labels/:conversation_id
func UpdateLabels(c *gin.Context) {
	id, ok := ParamID(c, "conversation_id")
	if !ok {
		return
	}
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	var req LabelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	labels, err := deps.Chatwoot.AddLabels(c.Request.Context(), id, req.Labels)
	if err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"status": "success", "conversation_id": id, "labels": labels})
}

// POST /api/v1/actions/update-custom-attributes/:conversation_id
func UpdateCustomAttributes(c *gin.Context) {
	id, ok := ParamID(c, "conversation_id")
	if !ok {
		return
	}
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	var req CustomAttributesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.CustomAttributes) == 0 {
		RespondSuccess(c, gin.H{"status": "success", "message": "No custom attrs provided"})
		return
	}

	attrs, err := deps.Chatwoot.UpdateCustomAttributes(c.Request.Context(), id, req.CustomAttributes)
	if err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"status": "success", "conversation_id": id, "custom_attributes": attrs})
}

// POST /api/v1/actions/toggle-priority/:conversation_id
func TogglePriority(c *gin.Context) {
	id, ok := ParamID(c, "conversation_id")
	if !ok {
		return
	}
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	var req PriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	priority, err := chatwoot.ParsePriority(req.Priority)
	if err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	if err := deps.Chatwoot.TogglePriority(c.Request.Context(), id, priority); err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"status": "success", "conversation_id": id, "priority": priority})
}

// POST /api/v1/actions/toggle-status/:conversation_id
func ToggleStatus(c *gin.Context) {
	id, ok := ParamID(c, "conversation_id")
	if !ok {
		return
	}
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	status, err := chatwoot.ParseStatus(req.Status)
	if err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	changed, err := deps.Chatwoot.ToggleStatus(c.Request.Context(), id, status)
	if err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"status": "success", "conversation_id": id, "conversation_status": status, "changed": changed})
}

// POST /api/v1/actions/assign-team/:conversation_id
func AssignTeam(c *gin.Context) {
	id, ok := ParamID(c, "conversation_id")
	if !ok {
		return
	}
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	var req TeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := c.Request.Context()

	name := strings.TrimSpace(req.Team)
	if name == "" || strings.EqualFold(name, "none") {
		if err := deps.Chatwoot.AssignTeam(ctx, id, nil); err != nil {
			RespondUpstreamError(c, err)
			return
		}
		RespondSuccess(c, gin.H{"status": "success", "conversation_id": id, "team_id": nil})
		return
	}

	teamID, found, err := deps.Teams.Resolve(ctx, name)
	if err != nil {
		RespondError(c, err.Error(), http.StatusBadGateway)
		return
	}
	if !found {
		if _, err := deps.Teams.ForceRefresh(ctx); err != nil {
			deps.logger().Warn("team refresh failed", "team", name, "error", err)
		}
		if teamID, found, err = deps.Teams.Resolve(ctx, name); err != nil {
			RespondError(c, err.Error(), http.StatusBadGateway)
			return
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error":           fmt.Sprintf("team %q not found", name),
			"available_teams": deps.Teams.Names(),
		})
		return
	}

	if err := deps.Chatwoot.AssignTeam(ctx, id, &teamID); err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"status": "success", "conversation_id": id, "team_id": teamID})
}

// POST /api/v1/actions/assign/:conversation_id
func Assign(c *gin.Context) {
	id, ok := ParamID(c, "conversation_id")
	if !ok {
		return
	}
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	if err := deps.Chatwoot.SetAssignee(c.Request.Context(), id, req.AssigneeID); err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"status": "success", "conversation_id": id, "assignee_id": req.AssigneeID})
}

// POST /api/v1/actions/refresh-teams
func RefreshTeams(c *gin.Context) {
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	if _, err := deps.Teams.ForceRefresh(c.Request.Context()); err != nil {
		RespondError(c, err.Error(), http.StatusBadGateway)
		return
	}
	RespondSuccess(c, gin.H{"status": "success", "teams": deps.Teams.Names()})
}

// GET /api/v1/actions/conversations
func ListConversations(c *gin.Context) {
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	teamID, ok := queryInt(c, "team_id")
	if !ok {
		return
	}

	conversations, err := deps.Chatwoot.ListConversations(c.Request.Context(), chatwoot.ConversationFilter{
		Status:       c.Query("status"),
		AssigneeType: c.Query("assignee_type"),
		TeamID:       teamID,
	})
	if err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"conversations": conversations})
}

// GET /api/v1/actions/conversations/:conversation_id
func GetConversation(c *gin.Context) {
	id, ok := ParamID(c, "conversation_id")
	if !ok {
		return
	}
	deps, ok := dependencies(c)
	if !ok {
		return
	}

	conversation, err := deps.Chatwoot.GetConversation(c.Request.Context(), id)
	if err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"conversation": conversation})
}

// GET /api/v1/actions/conversations/dify/:dify_conversation_id
func GetDialogueByDifyID(c *gin.Context) {
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	difyID := strings.TrimSpace(c.Param("dify_conversation_id"))
	if difyID == "" {
		RespondError(c, "dify_conversation_id is required", http.StatusBadRequest)
		return
	}

	dialogue, err := deps.Dialogues.FindByDifyID(c.Request.Context(), difyID)
	if errors.Is(err, db.ErrDialogueNotFound) {
		RespondError(c, "dialogue not found", http.StatusNotFound)
		return
	}
	if err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, gin.H{"dialogue": dialogue})
}

// GET /api/v1/actions/dialogue-info/:conversation_id
func GetDialogueInfo(c *gin.Context) {
	id, ok := ParamID(c, "conversation_id")
	if !ok {
		return
	}
	deps, ok := dependencies(c)
	if !ok {
		return
	}

	dialogue, err := deps.Dialogues.FindByChatwootID(c.Request.Context(), strconv.Itoa(id))
	if errors.Is(err, db.ErrDialogueNotFound) {
		RespondError(c, "dialogue not found", http.StatusNotFound)
		return
	}
	if err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, gin.H{"dialogue": dialogue})
}

// POST /api/v1/actions/custom-attribute-definitions
func CreateCustomAttributeDefinition(c *gin.Context) {
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	var req AttributeDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := deps.Chatwoot.CreateCustomAttributeDefinition(c.Request.Context(), chatwoot.AttributeDefinition{
		DisplayName: req.DisplayName,
		DisplayType: req.DisplayType,
		Description: req.Description,
		Key:         req.Key,
		Model:       req.Model,
		Values:      req.Values,
	})
	if err != nil {
		RespondUpstreamError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"status": "success", "definition": created})
}
