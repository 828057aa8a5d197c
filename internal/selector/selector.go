// Package selector picks a model from the remote catalog for a task.
package selector

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"aiknife/internal/models"
)

// FallbackModel is returned whenever no catalog entry qualifies.
const FallbackModel = "openai/gpt-4"

// Task labels understood by the ordering policy. Unknown labels use the
// default ordering.
const (
	TaskSummarize = "summarize"
	TaskAnalyze   = "analyze"
	TaskCreate    = "create"
	TaskChat      = "chat"
	TaskCode      = "code"
	TaskDefault   = "default"
)

// CapabilityTools is the capability flag for tool calling.
const CapabilityTools = "tools"

// Catalog lists the models currently offered upstream.
type Catalog interface {
	ListModels(ctx context.Context) ([]models.ModelDescriptor, error)
}

// Requirements narrows the candidate set. Zero values impose no constraint.
type Requirements struct {
	MinContextLength int
	MaxPrice         *models.Pricing
	Features         []string
}

// Selector applies the filter and ordering policy.
type Selector struct {
	fallback string
}

// New returns a selector that falls back to fallback, or FallbackModel when empty.
func New(fallback string) *Selector {
	if strings.TrimSpace(fallback) == "" {
		fallback = FallbackModel
	}
	return &Selector{fallback: fallback}
}

// Fallback returns the identifier used when nothing qualifies.
func (s *Selector) Fallback() string {
	return s.fallback
}

// Select fetches the catalog and returns the best model id for task. It
// never fails: catalog errors and empty candidate sets yield the fallback.
func (s *Selector) Select(ctx context.Context, catalog Catalog, task string, req Requirements) string {
	return s.SelectWithFallback(ctx, catalog, task, req, s.fallback)
}

// SelectWithFallback is Select with a per-call fallback, used when the user
// configured a default model.
func (s *Selector) SelectWithFallback(ctx context.Context, catalog Catalog, task string, req Requirements, fallback string) string {
	if strings.TrimSpace(fallback) == "" {
		fallback = s.fallback
	}

	descs, err := catalog.ListModels(ctx)
	if err != nil {
		slog.Warn("model catalog unavailable, using fallback", "task", task, "fallback", fallback, "error", err)
		return fallback
	}

	ranked := Rank(descs, task, req)
	if len(ranked) == 0 {
		slog.Debug("no model matched requirements", "task", task, "catalog_size", len(descs), "fallback", fallback)
		return fallback
	}

	slog.Debug("model selected", "task", task, "model", ranked[0].ID, "candidates", len(ranked))
	return ranked[0].ID
}

// Rank filters descs by req and orders the survivors for task. The input is
// not modified.
func Rank(descs []models.ModelDescriptor, task string, req Requirements) []models.ModelDescriptor {
	candidates := make([]models.ModelDescriptor, 0, len(descs))
	for _, d := range descs {
		if qualifies(d, req) {
			candidates = append(candidates, d)
		}
	}

	switch task {
	case TaskChat:
		slices.SortStableFunc(candidates, func(a, b models.ModelDescriptor) int {
			return cmp.Compare(b.Pricing.Completion, a.Pricing.Completion)
		})
		return candidates
	case TaskCode:
		candidates = slices.DeleteFunc(candidates, func(d models.ModelDescriptor) bool {
			return !d.Supports(CapabilityTools) && !strings.Contains(strings.ToLower(d.ID), "code")
		})
	}

	slices.SortStableFunc(candidates, func(a, b models.ModelDescriptor) int {
		return cmp.Compare(b.ContextLength, a.ContextLength)
	})
	return candidates
}

func qualifies(d models.ModelDescriptor, req Requirements) bool {
	if req.MinContextLength > 0 && d.ContextLength < req.MinContextLength {
		return false
	}
	if req.MaxPrice != nil &&
		(d.Pricing.Prompt > req.MaxPrice.Prompt || d.Pricing.Completion > req.MaxPrice.Completion) {
		return false
	}
	for _, feature := range req.Features {
		if !d.Supports(feature) {
			return false
		}
	}
	return true
}
