package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"
	"github.com/alexbalandi/chatwoot-dify/db"
	"github.com/alexbalandi/chatwoot-dify/models"
	"github.com/alexbalandi/chatwoot-dify/relay"
	"github.com/alexbalandi/chatwoot-dify/tools"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngestor struct {
	mu     sync.Mutex
	events []*models.WebhookEvent
	err    error
}

func (f *fakeIngestor) Handle(ctx context.Context, ev *models.WebhookEvent) (relay.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if f.err != nil {
		return relay.Result{}, f.err
	}
	return relay.Result{Status: relay.StatusProcessing, JobID: "job-1"}, nil
}

type call struct {
	Op   string
	ID   int
	Args any
}

type fakeHelpdesk struct {
	calls    []call
	err      error
	teamsErr error
}

func (f *fakeHelpdesk) record(op string, id int, args any) error {
	f.calls = append(f.calls, call{Op: op, ID: id, Args: args})
	return f.err
}

func (f *fakeHelpdesk) SendMessage(ctx context.Context, id int, msg chatwoot.OutgoingMessage) (*chatwoot.Message, error) {
	if err := f.record("send", id, msg); err != nil {
		return nil, err
	}
	return &chatwoot.Message{ID: 99, Content: msg.Content, ConversationID: id}, nil
}

func (f *fakeHelpdesk) GetConversation(ctx context.Context, id int) (*chatwoot.Conversation, error) {
	if err := f.record("get", id, nil); err != nil {
		return nil, err
	}
	return &chatwoot.Conversation{ID: id, Status: "open"}, nil
}

func (f *fakeHelpdesk) AddLabels(ctx context.Context, id int, labels []string) ([]string, error) {
	return labels, f.record("labels", id, labels)
}

func (f *fakeHelpdesk) SetAssignee(ctx context.Context, id int, agentID *int) error {
	return f.record("assign", id, agentID)
}

func (f *fakeHelpdesk) AssignTeam(ctx context.Context, id int, teamID *int) error {
	return f.record("team", id, teamID)
}

func (f *fakeHelpdesk) UpdateCustomAttributes(ctx context.Context, id int, attrs map[string]any) (map[string]any, error) {
	return attrs, f.record("attrs", id, attrs)
}

func (f *fakeHelpdesk) TogglePriority(ctx context.Context, id int, p chatwoot.Priority) error {
	return f.record("priority", id, p)
}

func (f *fakeHelpdesk) ToggleStatus(ctx context.Context, id int, status chatwoot.Status) (bool, error) {
	return true, f.record("status", id, status)
}

func (f *fakeHelpdesk) ListConversations(ctx context.Context, filter chatwoot.ConversationFilter) ([]chatwoot.Conversation, error) {
	return []chatwoot.Conversation{{ID: 1}}, f.record("list", 0, filter)
}

func (f *fakeHelpdesk) ListTeams(ctx context.Context) ([]chatwoot.Team, error) {
	return nil, f.teamsErr
}

func (f *fakeHelpdesk) CreateCustomAttributeDefinition(ctx context.Context, def chatwoot.AttributeDefinition) (map[string]any, error) {
	return map[string]any{"attribute_key": def.Key}, f.record("definition", 0, def)
}

type fakeTeams struct {
	known     map[string]int
	afterSync map[string]int
	refreshes int
}

func (f *fakeTeams) Resolve(ctx context.Context, name string) (int, bool, error) {
	id, ok := f.known[strings.ToLower(name)]
	return id, ok, nil
}

func (f *fakeTeams) ForceRefresh(ctx context.Context) (int, error) {
	f.refreshes++
	if f.afterSync != nil {
		f.known = f.afterSync
	}
	return len(f.known), nil
}

func (f *fakeTeams) Names() []string {
	names := make([]string, 0, len(f.known))
	for n := range f.known {
		names = append(names, n)
	}
	return names
}

type fakeDialogues struct {
	byChatwoot map[string]*models.Dialogue
}

func (f *fakeDialogues) FindByChatwootID(ctx context.Context, id string) (*models.Dialogue, error) {
	if d, ok := f.byChatwoot[id]; ok {
		return d, nil
	}
	return nil, db.ErrDialogueNotFound
}

func (f *fakeDialogues) FindByDifyID(ctx context.Context, id string) (*models.Dialogue, error) {
	for _, d := range f.byChatwoot {
		if d.DifyConversation() == id {
			return d, nil
		}
	}
	return nil, db.ErrDialogueNotFound
}

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

type testEnv struct {
	deps     *Dependencies
	ingestor *fakeIngestor
	helpdesk *fakeHelpdesk
	teams    *fakeTeams
	engine   *gin.Engine
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	difyID := "D1"
	env := &testEnv{
		ingestor: &fakeIngestor{},
		helpdesk: &fakeHelpdesk{},
		teams:    &fakeTeams{known: map[string]int{"support": 3}},
	}
	env.deps = &Dependencies{
		Ingestor: env.ingestor,
		Chatwoot: env.helpdesk,
		Dialogues: &fakeDialogues{byChatwoot: map[string]*models.Dialogue{
			"42": {ID: "d-42", ChatwootConversationID: "42", DifyConversationID: &difyID, Status: "open"},
		}},
		Teams:     env.teams,
		Database:  pinger{},
		Assistant: pinger{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	r := gin.New()
	r.Use(SetDependencies(env.deps))
	r.GET("/health", Health)
	r.POST("/webhook", ChatwootWebhook)
	r.POST("/send", SendChatwootMessage)
	r.POST("/attrs/:conversation_id", UpdateCustomAttributes)
	r.POST("/status/:conversation_id", ToggleStatus)
	r.POST("/team/:conversation_id", AssignTeam)
	r.GET("/conversations/:conversation_id", GetConversation)
	r.GET("/conversations/dify/:dify_conversation_id", GetDialogueByDifyID)
	r.GET("/dialogue-info/:conversation_id", GetDialogueInfo)
	env.engine = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

const messageBody = `{"event":"message_created","message_type":"incoming","content":"Hello","conversation":{"id":42,"status":"pending"}}`

func TestWebhookAcceptsEvent(t *testing.T) {
	env := newTestEnv()
	w, out := env.do(t, http.MethodPost, "/webhook", messageBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processing", out["status"])
	require.Len(t, env.ingestor.events, 1)
	assert.Equal(t, "Hello", env.ingestor.events[0].Text())
}

func TestWebhookRejectsBadPayloads(t *testing.T) {
	env := newTestEnv()
	for name, body := range map[string]string{
		"malformed":       `{"event":`,
		"missing event":   `{"content":"hi"}`,
		"bad messagetype": `{"event":"message_created","message_type":"sideways"}`,
	} {
		w, _ := env.do(t, http.MethodPost, "/webhook", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
	assert.Empty(t, env.ingestor.events)
}

func TestWebhookReportsIngestFailure(t *testing.T) {
	env := newTestEnv()
	env.ingestor.err = errors.New("enqueue relay: queue is full")

	w, out := env.do(t, http.MethodPost, "/webhook", messageBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to process webhook", out["error"])
	assert.Contains(t, out["detail"], "queue is full")
}

func TestWebhookSignature(t *testing.T) {
	env := newTestEnv()
	env.deps.WebhookSecret = "s3cret"

	w, _ := env.do(t, http.MethodPost, "/webhook", messageBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodPost, "/webhook", messageBody, SignatureHeader, tools.SignSHA256("other", []byte(messageBody)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodPost, "/webhook", messageBody, SignatureHeader, tools.SignSHA256("s3cret", []byte(messageBody)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.ingestor.events, 1)
}

func TestSendChatwootMessage(t *testing.T) {
	env := newTestEnv()
	w, out := env.do(t, http.MethodPost, "/send", `{"conversation_id":42,"message":"hi","is_private":true,"attachments":["https://files.example.com/a.png"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 99, out["message_id"])

	require.Len(t, env.helpdesk.calls, 1)
	msg := env.helpdesk.calls[0].Args.(chatwoot.OutgoingMessage)
	assert.True(t, msg.Private)
	assert.Equal(t, []string{"https://files.example.com/a.png"}, msg.Attachments)

	w, _ = env.do(t, http.MethodPost, "/send", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateCustomAttributesEmpty(t *testing.T) {
	env := newTestEnv()
	w, out := env.do(t, http.MethodPost, "/attrs/42", `{"custom_attributes":{}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No custom attrs provided", out["message"])
	assert.Empty(t, env.helpdesk.calls)

	w, _ = env.do(t, http.MethodPost, "/attrs/42", `{"custom_attributes":{"tier":"gold"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.helpdesk.calls, 1)
}

func TestToggleStatusValidates(t *testing.T) {
	env := newTestEnv()
	w, _ := env.do(t, http.MethodPost, "/status/42", `{"status":"closed"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/status/42", `{"status":"Resolved"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, chatwoot.StatusResolved, env.helpdesk.calls[0].Args)

	w, _ = env.do(t, http.MethodPost, "/status/abc", `{"status":"open"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignTeam(t *testing.T) {
	env := newTestEnv()

	w, out := env.do(t, http.MethodPost, "/team/42", `{"team":"Support"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, out["team_id"])
	assert.Equal(t, 0, env.teams.refreshes)

	w, _ = env.do(t, http.MethodPost, "/team/42", `{"team":"none"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, env.helpdesk.calls[1].Args.(*int))

	env.teams.afterSync = map[string]int{"support": 3, "billing": 8}
	w, out = env.do(t, http.MethodPost, "/team/42", `{"team":"billing"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 8, out["team_id"])
	assert.Equal(t, 1, env.teams.refreshes)

	w, out = env.do(t, http.MethodPost, "/team/42", `{"team":"sales"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.ElementsMatch(t, []any{"support", "billing"}, out["available_teams"])
	assert.Equal(t, 2, env.teams.refreshes)
}

func TestGetConversationNotFound(t *testing.T) {
	env := newTestEnv()
	env.helpdesk.err = &chatwoot.APIError{Method: "GET", Path: "/conversations/5", StatusCode: 404}

	w, _ := env.do(t, http.MethodGet, "/conversations/5", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.helpdesk.err = &chatwoot.APIError{Method: "GET", Path: "/conversations/5", StatusCode: 500}
	w, _ = env.do(t, http.MethodGet, "/conversations/5", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestDialogueLookups(t *testing.T) {
	env := newTestEnv()

	w, out := env.do(t, http.MethodGet, "/dialogue-info/42", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "D1", out["dialogue"].(map[string]any)["dify_conversation_id"])

	w, out = env.do(t, http.MethodGet, "/conversations/dify/D1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", out["dialogue"].(map[string]any)["chatwoot_conversation_id"])

	w, _ = env.do(t, http.MethodGet, "/dialogue-info/7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = env.do(t, http.MethodGet, "/conversations/dify/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv()
	w, out := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", out["status"])

	env.deps.Assistant = pinger{err: errors.New("dify down")}
	w, out = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", out["status"])
	checks := out["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"].(map[string]any)["status"])
	assert.Equal(t, "unhealthy", checks["dify"].(map[string]any)["status"])
}
