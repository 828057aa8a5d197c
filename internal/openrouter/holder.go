package openrouter

import (
	"log/slog"
	"strings"
	"sync"

	"aiknife/internal/models"
)

// Holder owns the client built from the current credential. It is replaced
// wholesale whenever the credential changes.
type Holder struct {
	mu     sync.RWMutex
	base   Options
	client *Client
}

// NewHolder returns an empty holder; base supplies everything but the key.
func NewHolder(base Options) *Holder {
	if base.HTTPClient == nil {
		base.HTTPClient = NewHTTPClient()
	}
	return &Holder{base: base}
}

// Update rebuilds the client for apiKey. An empty key clears it.
func (h *Holder) Update(apiKey string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if strings.TrimSpace(apiKey) == "" {
		h.client = nil
		slog.Info("openrouter client cleared")
		return nil
	}

	client, err := h.build(apiKey)
	if err != nil {
		return err
	}
	h.client = client
	slog.Info("openrouter client initialised")
	return nil
}

// Current returns the active client or ErrConfiguration when no credential is set.
func (h *Holder) Current() (*Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.client == nil {
		return nil, models.Configurationf("OpenRouter API key not set. Please set it in the extension options.")
	}
	return h.client, nil
}

// WithKey builds a standalone client that shares the holder's settings but
// uses apiKey. The holder itself is left untouched.
func (h *Holder) WithKey(apiKey string) (*Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.build(apiKey)
}

func (h *Holder) build(apiKey string) (*Client, error) {
	opts := h.base
	opts.APIKey = apiKey
	return New(opts)
}
