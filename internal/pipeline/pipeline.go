// Package pipeline runs one menu click end to end: it resolves the action,
// picks a model, calls OpenRouter and drives the overlay.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aiknife/internal/models"
	"aiknife/internal/openrouter"
	"aiknife/internal/overlay"
	"aiknife/internal/render"
	"aiknife/internal/selector"
	"aiknife/internal/tasks"
)

// Request is one context-menu click.
type Request struct {
	MenuItemID    string `json:"menu_item_id"`
	SelectionText string `json:"selection_text"`
	PageURL       string `json:"page_url"`
	TabID         int    `json:"tab_id"`
}

// Content is the text the action works on: the selection, or the page
// address when nothing is selected.
func (r Request) Content() string {
	if r.SelectionText != "" {
		return r.SelectionText
	}
	return r.PageURL
}

// Outcome describes a completed run.
type Outcome struct {
	Category string
	Action   string
	Model    string
	Result   render.Result
	Streamed bool
}

// Clients supplies the client for the current credential.
type Clients interface {
	Current() (*openrouter.Client, error)
}

// Pipeline is safe for concurrent use; each Run is independent.
type Pipeline struct {
	registry     *tasks.Registry
	selector     *selector.Selector
	clients      Clients
	defaultModel func() string
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithDefaultModel sets the source of the user's default model, which
// replaces the selector fallback when non-empty.
func WithDefaultModel(fn func() string) Option {
	return func(p *Pipeline) { p.defaultModel = fn }
}

func New(registry *tasks.Registry, sel *selector.Selector, clients Clients, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:     registry,
		selector:     sel,
		clients:      clients,
		defaultModel: func() string { return "" },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes req and reports progress to sink. Any failure is also sent
// to sink as a showError message before it is returned.
func (p *Pipeline) Run(ctx context.Context, req Request, sink overlay.Sink) (Outcome, error) {
	start := time.Now()

	out, err := p.run(ctx, req, sink)
	if err != nil {
		slog.Error("task failed", "menu_item", req.MenuItemID, "tab", req.TabID, "error", err)
		if sendErr := sink.Send(context.WithoutCancel(ctx), overlay.ShowError(ErrorMessage(err))); sendErr != nil {
			slog.Warn("failed to deliver error to overlay", "tab", req.TabID, "error", sendErr)
		}
		return Outcome{}, err
	}

	slog.Info("task completed",
		"category", out.Category,
		"action", out.Action,
		"model", out.Model,
		"streamed", out.Streamed,
		"duration", time.Since(start),
	)
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, sink overlay.Sink) (Outcome, error) {
	client, err := p.clients.Current()
	if err != nil {
		return Outcome{}, err
	}

	content := req.Content()
	if strings.TrimSpace(content) == "" {
		return Outcome{}, models.Validationf("No content selected")
	}

	category, action, err := tasks.ParseMenuID(req.MenuItemID)
	if err != nil {
		return Outcome{}, err
	}

	if err := sink.Send(ctx, overlay.ShowLoading(action)); err != nil {
		return Outcome{}, fmt.Errorf("send loading: %w", err)
	}

	prepared, err := p.registry.Prepare(category, action, content)
	if err != nil {
		return Outcome{}, err
	}

	model := p.selector.SelectWithFallback(ctx, client, prepared.SelectionTask, prepared.Requirements, p.defaultModel())
	opts := prepared.Options
	opts.Model = model

	slog.Debug("task prepared",
		"category", category,
		"action", action,
		"model", model,
		"stream", opts.Stream,
		"fallback_template", prepared.Fallback,
	)

	out := Outcome{Category: category, Action: action, Model: model, Streamed: opts.Stream}

	if opts.Stream {
		text, err := p.stream(ctx, client, prepared.Messages, opts, action, sink)
		if err != nil {
			return Outcome{}, err
		}
		out.Result = render.Parse(text, prepared.Structured)
	} else {
		text, err := client.Chat(ctx, prepared.Messages, opts)
		if err != nil {
			return Outcome{}, err
		}
		out.Result = render.Parse(text, prepared.Structured)
	}

	if err := sink.Send(ctx, overlay.ShowResult(out.Result, action, model)); err != nil {
		return Outcome{}, fmt.Errorf("send result: %w", err)
	}
	return out, nil
}

// stream forwards the accumulated text after every delta. A sink failure
// stops reading and releases the response.
func (p *Pipeline) stream(ctx context.Context, client *openrouter.Client, msgs []models.Message, opts models.ChatOptions, action string, sink overlay.Sink) (string, error) {
	s, err := client.OpenStream(ctx, msgs, opts)
	if err != nil {
		return "", err
	}
	defer s.Close()

	var acc strings.Builder
	for delta, err := range s.Deltas() {
		if err != nil {
			return "", err
		}
		acc.WriteString(delta)
		if err := sink.Send(ctx, overlay.UpdateStreamingResult(acc.String(), action)); err != nil {
			return "", fmt.Errorf("send streaming result: %w", err)
		}
	}
	return acc.String(), nil
}

// ErrorMessage is the overlay text for err. Configuration and validation
// problems are shown as they are; everything else is reported as a failed
// task.
func ErrorMessage(err error) string {
	if errors.Is(err, models.ErrConfiguration) || errors.Is(err, models.ErrValidation) {
		return err.Error()
	}
	return "Failed to process task: " + err.Error()
}
