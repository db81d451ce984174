package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alexbalandi/chatwoot-dify/config"
	"github.com/alexbalandi/chatwoot-dify/controllers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubTeams struct{}

func (stubTeams) Resolve(ctx context.Context, name string) (int, bool, error) { return 0, false, nil }
func (stubTeams) ForceRefresh(ctx context.Context) (int, error)              { return 2, nil }
func (stubTeams) Names() []string                                             { return []string{"billing", "support"} }

func newEngine(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	var cfg config.Configuration
	cfg.Actions.Token = token
	cfg.Cors.AllowedOrigins = []string{"https://app.example.com"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := gin.New()
	Initialize(r, cfg, &controllers.Dependencies{Teams: stubTeams{}, Logger: logger}, logger)
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestActionsRequireToken(t *testing.T) {
	r := newEngine("t0ken")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/refresh-teams", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/actions/refresh-teams", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/actions/refresh-teams", nil)
	req.Header.Set("Authorization", "Bearer t0ken")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"support"`)
}

func TestActionsOpenWithoutToken(t *testing.T) {
	r := newEngine("")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/refresh-teams", strings.NewReader(""))
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestCORSAllowedOrigins(t *testing.T) {
	r := newEngine("")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
