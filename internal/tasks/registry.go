// Package tasks holds the static action table: which menu actions exist,
// which prompt each one sends and which model capabilities it needs.
package tasks

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"aiknife/internal/models"
	"aiknife/internal/selector"
)

// ContentToken is the single substitution token of a user template.
const ContentToken = "{content}"

const (
	fallbackTemperature = 0.7
	responseTypeJSON    = "json_object"
)

// Template is the prompt pair and request options for one action.
type Template struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	Stream      bool
	Schema      *jsonschema.Definition
}

// Action is one leaf of the menu.
type Action struct {
	ID    string
	Title string
	// Template is nil for actions served by the generic fallback.
	Template *Template
	Features []string
}

// Category groups actions under one top-level menu entry.
type Category struct {
	ID      string
	Title   string
	Actions []Action
}

// Prepared is everything needed to issue the request for one action.
type Prepared struct {
	Category      string
	Action        string
	Messages      []models.Message
	Options       models.ChatOptions
	Structured    bool
	// SelectionTask is the label the model selector orders by: the action id.
	SelectionTask string
	Requirements  selector.Requirements
	Fallback      bool
}

// Registry is the immutable action table. It is safe for concurrent use.
type Registry struct {
	categories []Category
	index      map[string]map[string]Action
}

// NewRegistry validates categories and builds a registry from a private copy.
func NewRegistry(categories []Category) (*Registry, error) {
	r := &Registry{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]map[string]Action, len(categories)),
	}

	for _, cat := range categories {
		if err := validateID(cat.ID); err != nil {
			return nil, fmt.Errorf("category %q: %w", cat.ID, err)
		}
		if _, exists := r.index[cat.ID]; exists {
			return nil, fmt.Errorf("category %q registered twice", cat.ID)
		}

		actions := make(map[string]Action, len(cat.Actions))
		copied := cat
		copied.Actions = make([]Action, 0, len(cat.Actions))
		for _, action := range cat.Actions {
			if err := validateID(action.ID); err != nil {
				return nil, fmt.Errorf("action %s/%q: %w", cat.ID, action.ID, err)
			}
			if _, exists := actions[action.ID]; exists {
				return nil, fmt.Errorf("action %s/%s registered twice", cat.ID, action.ID)
			}
			if action.Template != nil {
				if n := strings.Count(action.Template.User, ContentToken); n != 1 {
					return nil, fmt.Errorf("action %s/%s: user template must contain %s exactly once, found %d", cat.ID, action.ID, ContentToken, n)
				}
				tpl := *action.Template
				action.Template = &tpl
			}
			action.Features = append([]string(nil), action.Features...)
			actions[action.ID] = action
			copied.Actions = append(copied.Actions, action)
		}

		r.index[cat.ID] = actions
		r.categories = append(r.categories, copied)
	}

	return r, nil
}

// MustNewRegistry is NewRegistry that panics on an invalid table.
func MustNewRegistry(categories []Category) *Registry {
	r, err := NewRegistry(categories)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the built-in action table.
func Default() *Registry {
	return MustNewRegistry(defaultCategories())
}

// Categories returns the categories in menu order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.categories))
	copy(out, r.categories)
	return out
}

// Lookup returns the action registered under category/action.
func (r *Registry) Lookup(category, action string) (Action, bool) {
	a, ok := r.index[category][action]
	return a, ok
}

// Prepare builds the messages and options for an action. Unknown actions
// get the generic fallback template instead of an error.
func (r *Registry) Prepare(category, action, content string) (Prepared, error) {
	if strings.TrimSpace(content) == "" {
		return Prepared{}, models.Validationf("No content selected")
	}
	if category == "" || action == "" {
		return Prepared{}, models.Validationf("Unsupported task type: %q/%q", category, action)
	}

	entry, ok := r.Lookup(category, action)
	req := selector.Requirements{Features: append([]string(nil), entry.Features...)}

	if !ok || entry.Template == nil {
		return Prepared{
			Category: category,
			Action:   action,
			Messages: []models.Message{
				{Role: models.RoleSystem, Content: fmt.Sprintf("You are a helpful assistant skilled in %s tasks.", action)},
				{Role: models.RoleUser, Content: content},
			},
			Options: models.ChatOptions{
				Temperature: fallbackTemperature,
				Stream:      true,
			},
			SelectionTask: action,
			Requirements:  req,
			Fallback:      true,
		}, nil
	}

	tpl := entry.Template
	opts := models.ChatOptions{
		Temperature: tpl.Temperature,
		MaxTokens:   tpl.MaxTokens,
		Stream:      tpl.Stream,
	}
	if tpl.Schema != nil {
		opts.ResponseFormat = &models.ResponseFormat{Type: responseTypeJSON, Schema: tpl.Schema}
	}

	return Prepared{
		Category: category,
		Action:   action,
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: tpl.System},
			{Role: models.RoleUser, Content: strings.Replace(tpl.User, ContentToken, content, 1)},
		},
		Options:       opts,
		Structured:    tpl.Schema != nil,
		SelectionTask: action,
		Requirements:  req,
	}, nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id must not be empty")
	}
	if strings.Contains(id, MenuSeparator) {
		return fmt.Errorf("id must not contain %q", MenuSeparator)
	}
	return nil
}
