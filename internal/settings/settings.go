// Package settings persists the user's OpenRouter key and default model.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"aiknife/internal/models"
	"aiknife/internal/selector"
)

// KeyPrefix is the prefix every OpenRouter key carries.
const KeyPrefix = "sk-or-"

// Settings are the two user-editable values.
type Settings struct {
	APIKey       string `toml:"api_key" json:"apiKey,omitempty"`
	DefaultModel string `toml:"default_model" json:"defaultModel,omitempty"`
}

// Redacted hides all but the tail of the key.
func (s Settings) Redacted() Settings {
	if s.APIKey == "" {
		return s
	}
	tail := s.APIKey
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	s.APIKey = KeyPrefix + "…" + tail
	return s
}

// Validate checks the values without contacting the remote API.
func (s Settings) Validate() error {
	if s.APIKey == "" {
		return models.Validationf("Please enter an API key")
	}
	if !strings.HasPrefix(s.APIKey, KeyPrefix) {
		return models.Validationf("Invalid API key format. Should start with %q", KeyPrefix)
	}
	if s.DefaultModel == "" {
		return models.Validationf("Please enter a default model")
	}
	return nil
}

// Store is the settings file plus change subscribers. It is safe for
// concurrent use.
type Store struct {
	mu          sync.RWMutex
	path        string
	current     Settings
	subscribers []func(Settings)
}

// Open loads path. A missing file yields empty settings.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, &s.current); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return s, nil
}

// Path is where the settings are stored.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers fn to run after every successful save. fn is also
// called once with the current values.
func (s *Store) Subscribe(fn func(Settings)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	current := s.current
	s.mu.Unlock()
	fn(current)
}

// Save writes values and notifies subscribers.
func (s *Store) Save(values Settings) error {
	s.mu.Lock()
	if err := write(s.path, values); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = values
	subscribers := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(values)
	}
	return nil
}

func write(path string, values Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}

	// O_TRUNC keeps the mode of an existing file.
	if err := f.Chmod(0600); err != nil {
		f.Close()
		return fmt.Errorf("failed to restrict settings file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(values); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// Warning messages reported alongside a successful save.
const (
	WarnModelUnchecked = "Could not validate model. Please verify it manually."
)

// CheckModel verifies id against the catalog. An unreachable catalog is not
// an error; it returns a warning instead.
func CheckModel(ctx context.Context, catalog selector.Catalog, id string) (warning string, err error) {
	descs, err := catalog.ListModels(ctx)
	if err != nil {
		return WarnModelUnchecked, nil
	}
	if !selector.Contains(descs, id) {
		return "", models.Validationf("Invalid model identifier. Please check available models.")
	}
	return "", nil
}

// KeyChecker reports the state of an API key.
type KeyChecker interface {
	KeyInfo(ctx context.Context) (models.KeyInfo, error)
}

// Outcome is what a successful Apply reports back.
type Outcome struct {
	Warnings []string `json:"warnings,omitempty"`
	Status   string   `json:"status"`
}

// Apply validates values, checks the model against catalog, saves, and then
// tests the key with checker. A failed key test does not undo the save.
func Apply(ctx context.Context, store *Store, values Settings, catalog selector.Catalog, checker func(apiKey string) (KeyChecker, error)) (Outcome, error) {
	values.APIKey = strings.TrimSpace(values.APIKey)
	values.DefaultModel = strings.TrimSpace(values.DefaultModel)

	if err := values.Validate(); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	if catalog != nil {
		warning, err := CheckModel(ctx, catalog, values.DefaultModel)
		if err != nil {
			return Outcome{}, err
		}
		if warning != "" {
			out.Warnings = append(out.Warnings, warning)
		}
	}

	if err := store.Save(values); err != nil {
		return Outcome{}, err
	}
	out.Status = "Settings saved successfully!"

	if checker == nil {
		return out, nil
	}
	kc, err := checker(values.APIKey)
	if err != nil {
		out.Warnings = append(out.Warnings, "Error validating API key: "+err.Error())
		return out, nil
	}
	info, err := kc.KeyInfo(ctx)
	if err != nil {
		out.Warnings = append(out.Warnings, "Error validating API key: "+err.Error())
		return out, nil
	}
	out.Status = fmt.Sprintf("API key verified! Credits used: %g", info.Usage)
	return out, nil
}
