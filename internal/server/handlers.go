package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"aiknife/internal/overlay"
	"aiknife/internal/pipeline"
	"aiknife/internal/selector"
	"aiknife/internal/settings"
)

const eventStreamType = "text/event-stream"

type taskResponse struct {
	RequestID string            `json:"request_id"`
	Messages  []overlay.Message `json:"messages"`
	Overlay   overlay.Panel     `json:"overlay"`
	Error     *errorDetail      `json:"error,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMenu(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"data": s.deps.Registry.Menu()})
}

func (s *Server) handleTask(c echo.Context) error {
	var req pipeline.Request
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.MenuItemID) == "" {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "menu_item_id is required",
			Type:    "invalid_request_error",
		}
	}

	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), eventStreamType) {
		return s.streamTask(c, req, requestID)
	}

	var rec overlay.Recorder
	_, err := s.deps.Pipeline.Run(c.Request().Context(), req, overlay.Tee(s.deps.Board.Sink(req.TabID), &rec))

	panel, _ := s.deps.Board.Snapshot(req.TabID)
	resp := taskResponse{
		RequestID: requestID,
		Messages:  rec.Messages(),
		Overlay:   panel,
	}
	status := http.StatusOK
	if err != nil {
		he := toHTTPError(err)
		status = he.Status
		resp.Error = &errorDetail{Message: pipeline.ErrorMessage(err), Type: he.Type}
	}
	return c.JSON(status, resp)
}

// streamTask relays overlay messages as server-sent events named after
// their action. Failures arrive as a showError event, so the response
// status is always 200 once streaming starts.
func (s *Server) streamTask(c echo.Context, req pipeline.Request, requestID string) error {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, eventStreamType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	sink := &sseSink{w: writer, flusher: flusher}
	if err := sink.event("request", map[string]string{"request_id": requestID}); err != nil {
		return nil
	}

	_, runErr := s.deps.Pipeline.Run(c.Request().Context(), req, overlay.Tee(s.deps.Board.Sink(req.TabID), sink))
	if err := sink.event("done", map[string]any{"request_id": requestID, "ok": runErr == nil}); err != nil {
		slog.Debug("client went away before done event", "request_id", requestID, "err", err)
	}
	return nil
}

type sseSink struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

func (s *sseSink) Send(ctx context.Context, msg overlay.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.event(msg.Action, msg)
}

func (s *sseSink) event(name string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeSSEEvent(s.w, name, payload); err != nil {
		slog.Error("failed to write SSE event", "event", name, "err", err)
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Server) handleOverlay(c echo.Context) error {
	tab, err := tabParam(c)
	if err != nil {
		return err
	}
	panel, ok := s.deps.Board.Snapshot(tab)
	if !ok {
		return requestError{
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("no overlay for tab %d", tab),
			Type:    "not_found_error",
		}
	}
	return c.JSON(http.StatusOK, panel)
}

func (s *Server) handleHideOverlay(c echo.Context) error {
	tab, err := tabParam(c)
	if err != nil {
		return err
	}
	s.deps.Board.Hide(tab)
	return c.NoContent(http.StatusNoContent)
}

func tabParam(c echo.Context) (int, error) {
	tab, err := strconv.Atoi(c.Param("tab"))
	if err != nil {
		return 0, requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid tab id %q", c.Param("tab")),
			Type:    "invalid_request_error",
		}
	}
	return tab, nil
}

func (s *Server) handleModels(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("limit must be a positive integer, got %q", raw),
				Type:    "invalid_request_error",
			}
		}
		limit = n
	}

	client, err := s.deps.Clients.Current()
	if err != nil {
		return toHTTPError(err)
	}

	descs, err := client.ListModels(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}

	if q := c.QueryParam("q"); q != "" {
		descs = selector.Suggest(descs, q, limit)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": descs})
}

func (s *Server) handleAuth(c echo.Context) error {
	client, err := s.deps.Clients.Current()
	if err != nil {
		return toHTTPError(err)
	}
	info, err := client.KeyInfo(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": info})
}

func (s *Server) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Settings.Get().Redacted())
}

type settingsResponse struct {
	Settings settings.Settings `json:"settings"`
	settings.Outcome
}

func (s *Server) handlePutSettings(c echo.Context) error {
	var values settings.Settings
	if err := decodeRequestBody(c, &values); err != nil {
		return err
	}

	var catalog selector.Catalog
	if client, err := s.deps.Clients.WithKey(values.APIKey); err == nil {
		catalog = client
	}
	checker := func(apiKey string) (settings.KeyChecker, error) {
		return s.deps.Clients.WithKey(apiKey)
	}

	out, err := settings.Apply(c.Request().Context(), s.deps.Settings, values, catalog, checker)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, settingsResponse{
		Settings: s.deps.Settings.Get().Redacted(),
		Outcome:  out,
	})
}
