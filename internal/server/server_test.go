package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiknife/internal/config"
	"aiknife/internal/models"
	"aiknife/internal/openrouter"
	"aiknife/internal/openrouter/openroutertest"
	"aiknife/internal/overlay"
	"aiknife/internal/pipeline"
	"aiknife/internal/selector"
	"aiknife/internal/settings"
	"aiknife/internal/tasks"
)

var catalog = []models.ModelDescriptor{
	{ID: "openai/gpt-4o", ContextLength: 128000, SupportedParameters: []string{"tools"}},
	{ID: "anthropic/claude-3-opus", ContextLength: 200000, SupportedParameters: []string{"tools", "structured_outputs"}},
}

type harness struct {
	server   *Server
	upstream *openroutertest.Server
	store    *settings.Store
	board    *overlay.Board
}

func newHarness(t *testing.T, u openroutertest.Upstream, apiKey string) *harness {
	t.Helper()
	upstream := openroutertest.New(t, u)

	cfg := config.Default()
	cfg.OpenRouter.BaseURL = upstream.URL
	cfg.Settings.Path = filepath.Join(t.TempDir(), "settings.toml")

	store, err := settings.Open(cfg.Settings.Path)
	require.NoError(t, err)
	if apiKey != "" {
		require.NoError(t, store.Save(settings.Settings{APIKey: apiKey, DefaultModel: "openai/gpt-4o"}))
	}

	holder := openrouter.NewHolder(cfg.ClientOptions())
	store.Subscribe(func(s settings.Settings) { _ = holder.Update(s.APIKey) })

	registry := tasks.Default()
	board := overlay.NewBoard()
	p := pipeline.New(registry, selector.New(cfg.OpenRouter.FallbackModel), holder,
		pipeline.WithDefaultModel(func() string { return store.Get().DefaultModel }))

	srv, err := New(cfg, Deps{Pipeline: p, Registry: registry, Clients: holder, Settings: store, Board: board})
	require.NoError(t, err)
	return &harness{server: srv, upstream: upstream, store: store, board: board}
}

func (h *harness) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(config.Default(), Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{}, "")
	rec := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMenu(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{}, "")
	rec := h.do(t, http.MethodGet, "/v1/menu", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Data []tasks.MenuItem `json:"data"`
	}](t, rec)
	require.Len(t, body.Data, 6)
	assert.Equal(t, "write", body.Data[0].ID)
	assert.Equal(t, "write_email", body.Data[0].Children[0].ID)
}

type taskBody struct {
	RequestID string            `json:"request_id"`
	Messages  []overlay.Message `json:"messages"`
	Overlay   overlay.Panel     `json:"overlay"`
	Error     *errorDetail      `json:"error"`
}

func TestTask_JSON(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{Models: catalog, Reply: "Launch day is here!"}, "sk-or-test")

	rec := h.do(t, http.MethodPost, "/v1/tasks", `{"menu_item_id":"write_tweet","selection_text":"launch","tab_id":7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[taskBody](t, rec)
	assert.Equal(t, rec.Header().Get("X-Request-Id"), body.RequestID)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, overlay.ActionShowLoading, body.Messages[0].Action)
	assert.Equal(t, overlay.ActionShowResult, body.Messages[1].Action)
	assert.Equal(t, "anthropic/claude-3-opus", body.Messages[1].Model)
	require.NotNil(t, body.Messages[1].Result)
	assert.Equal(t, "Launch day is here!", body.Messages[1].Result.Text)
	assert.True(t, body.Overlay.Visible)
	assert.Equal(t, "Launch day is here!", body.Overlay.HTML)
	assert.Nil(t, body.Error)

	panel, ok := h.board.Snapshot(7)
	require.True(t, ok)
	assert.Equal(t, "Using anthropic/claude-3-opus", panel.ModelInfo)
}

func TestTask_MissingKey(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{Models: catalog}, "")

	rec := h.do(t, http.MethodPost, "/v1/tasks", `{"menu_item_id":"write_tweet","selection_text":"x","tab_id":1}`)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	body := decode[taskBody](t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, "configuration_error", body.Error.Type)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, overlay.ActionShowError, body.Messages[0].Action)
	assert.Equal(t, "OpenRouter API key not set. Please set it in the extension options.", body.Messages[0].Error)
}

func TestTask_BadRequests(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{}, "sk-or-test")

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty body", body: "", want: "request body is required"},
		{name: "bad json", body: "{", want: "invalid JSON payload"},
		{name: "missing menu id", body: `{"selection_text":"x"}`, want: "menu_item_id is required"},
		{name: "two objects", body: `{"menu_item_id":"a_b"}{}`, want: "single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/v1/tasks", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[errorBody](t, rec)
			assert.Contains(t, body.Error.Message, tt.want)
			assert.Equal(t, "invalid_request_error", body.Error.Type)
		})
	}
}

func TestTask_EventStream(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{Models: catalog, Deltas: []string{"Sum", "mary"}}, "sk-or-test")

	rec := h.do(t, http.MethodPost, "/v1/tasks",
		`{"menu_item_id":"analyze_summarize","selection_text":"long text","tab_id":3}`,
		"Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{
		"request",
		overlay.ActionShowLoading,
		overlay.ActionUpdateStreamingResult,
		overlay.ActionUpdateStreamingResult,
		overlay.ActionShowResult,
		"done",
	}, events)
	assert.Contains(t, rec.Body.String(), `"content":"Summary"`)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	panel, ok := h.board.Snapshot(3)
	require.True(t, ok)
	assert.Equal(t, "Summary", panel.HTML)
}

func TestTask_EventStreamReportsFailureInBand(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{Models: catalog, ChatStatus: http.StatusTooManyRequests, ChatMessage: "Rate limit exceeded"}, "sk-or-test")

	rec := h.do(t, http.MethodPost, "/v1/tasks",
		`{"menu_item_id":"analyze_summarize","selection_text":"x","tab_id":1}`,
		"Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: showError")
	assert.Contains(t, rec.Body.String(), "Failed to process task: Rate limit exceeded")
	assert.Contains(t, rec.Body.String(), `"ok":false`)
}

func TestOverlay(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{}, "")
	h.board.Apply(5, overlay.ShowLoading("code"))

	rec := h.do(t, http.MethodGet, "/v1/overlay/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	panel := decode[overlay.Panel](t, rec)
	assert.Equal(t, "💻 Generated Code", panel.Title)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/v1/overlay/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/overlay/6", "").Code)

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/v1/overlay/5", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/overlay/5", "").Code)
}

func TestModels(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{Models: catalog}, "sk-or-test")

	type modelsBody struct {
		Data []models.ModelDescriptor `json:"data"`
	}

	rec := h.do(t, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[modelsBody](t, rec).Data, 2)

	rec = h.do(t, http.MethodGet, "/v1/models?q=claude", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[modelsBody](t, rec)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "anthropic/claude-3-opus", body.Data[0].ID)

	rec = h.do(t, http.MethodGet, "/v1/models?q=o&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[modelsBody](t, rec).Data, 1)
}

func TestModels_BadLimit(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{Models: catalog}, "sk-or-test")

	for _, limit := range []string{"abc", "0", "-2"} {
		rec := h.do(t, http.MethodGet, "/v1/models?q=claude&limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
		body := decode[errorBody](t, rec)
		assert.Equal(t, "invalid_request_error", body.Error.Type)
		assert.Contains(t, body.Error.Message, "limit")
	}
}

func TestModels_UpstreamDown(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{ModelsErr: true}, "sk-or-test")
	rec := h.do(t, http.MethodGet, "/v1/models", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuth(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{Usage: 2.5}, "")
	assert.Equal(t, http.StatusPreconditionFailed, h.do(t, http.MethodGet, "/v1/auth", "").Code)

	require.NoError(t, h.store.Save(settings.Settings{APIKey: "sk-or-new", DefaultModel: "m"}))
	rec := h.do(t, http.MethodGet, "/v1/auth", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Data models.KeyInfo `json:"data"`
	}](t, rec)
	assert.Equal(t, 2.5, body.Data.Usage)
}

func TestSettings(t *testing.T) {
	h := newHarness(t, openroutertest.Upstream{Models: catalog, Usage: 0.75}, "")

	rec := h.do(t, http.MethodPut, "/v1/settings", `{"apiKey":"sk-wrong","defaultModel":"openai/gpt-4o"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error.Message, "sk-or-")

	rec = h.do(t, http.MethodPut, "/v1/settings", `{"apiKey":"sk-or-abcdef123456","defaultModel":"nope/model"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid model identifier. Please check available models.", decode[errorBody](t, rec).Error.Message)

	rec = h.do(t, http.MethodPut, "/v1/settings", `{"apiKey":"sk-or-abcdef123456","defaultModel":"openai/gpt-4o"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[settingsResponse](t, rec)
	assert.Equal(t, "sk-or-…3456", body.Settings.APIKey)
	assert.Equal(t, "API key verified! Credits used: 0.75", body.Status)

	rec = h.do(t, http.MethodGet, "/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[settings.Settings](t, rec)
	assert.Equal(t, "openai/gpt-4o", got.DefaultModel)
	assert.NotContains(t, rec.Body.String(), "abcdef123456")

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/v1/auth", "").Code)
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantMsg    string
	}{
		{name: "validation", err: models.Validationf("No content selected"), wantStatus: 400, wantType: "invalid_request_error", wantMsg: "No content selected"},
		{name: "configuration", err: models.Configurationf("no key"), wantStatus: 412, wantType: "configuration_error", wantMsg: "no key"},
		{name: "rate limited", err: &models.RemoteError{Status: 429, Message: "slow"}, wantStatus: 429, wantType: "upstream_error", wantMsg: "slow"},
		{name: "remote 500", err: &models.RemoteError{Status: 500, Message: "oops"}, wantStatus: 502, wantType: "upstream_error", wantMsg: "oops"},
		{name: "other", err: errors.New("dial tcp"), wantStatus: 502, wantType: "upstream_error", wantMsg: "upstream provider error"},
		{name: "request error", err: requestError{Status: 404, Message: "nf", Type: "not_found_error"}, wantStatus: 404, wantType: "not_found_error", wantMsg: "nf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toHTTPError(tt.err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantMsg, got.Message)
		})
	}
}
