package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiknife/internal/models"
	"aiknife/internal/openrouter/openroutertest"
	"aiknife/internal/overlay"
)

var catalog = []models.ModelDescriptor{
	{ID: "openai/gpt-4o", ContextLength: 128000, SupportedParameters: []string{"tools"}},
	{ID: "anthropic/claude-3-opus", ContextLength: 200000, SupportedParameters: []string{"tools", "structured_outputs"}},
	{ID: "mistralai/mistral-7b-instruct", ContextLength: 32000},
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// execute runs the root command against a config pointing at upstream and
// a settings file in dir.
func execute(t *testing.T, upstream *openroutertest.Server, dir string, args ...string) cliResult {
	t.Helper()

	configPath := filepath.Join(dir, "config.yaml")
	config := "openrouter:\n  base_url: " + upstream.URL + "\nsettings:\n  path: " + filepath.Join(dir, "settings.toml") + "\nlog:\n  no_color: true\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	root.SetIn(strings.NewReader(""))
	err := root.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestMenuListsEveryAction(t *testing.T) {
	t.Setenv(envAPIKey, "")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog})

	res := execute(t, upstream, t.TempDir(), "menu")
	require.NoError(t, res.err)

	for _, id := range []string{"write", "write_tweet", "analyze_summarize", "code_test", "translate_toEnglish", "social_thread"} {
		assert.Contains(t, res.stdout, id)
	}
	assert.Less(t, strings.Index(res.stdout, "write_email"), strings.Index(res.stdout, "analyze_summarize"))
}

func TestModelsSearch(t *testing.T) {
	t.Setenv(envAPIKey, "sk-or-test")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog})

	res := execute(t, upstream, t.TempDir(), "models", "--search", "claude")
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "anthropic/claude-3-opus")
	assert.NotContains(t, res.stdout, "mistralai/mistral-7b-instruct")
	assert.Contains(t, res.stdout, "structured_outputs")
}

func TestModelsWithoutKey(t *testing.T) {
	t.Setenv(envAPIKey, "")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog})

	res := execute(t, upstream, t.TempDir(), "models")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, models.ErrConfiguration)
}

func TestAuthPrintsUsage(t *testing.T) {
	t.Setenv(envAPIKey, "sk-or-test")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog, Usage: 1.25})

	res := execute(t, upstream, t.TempDir(), "auth")
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "label:     test")
	assert.Contains(t, res.stdout, "usage:     1.25")
	assert.Contains(t, res.stdout, "limit:     none")
}

func TestSettingsSetThenGet(t *testing.T) {
	t.Setenv(envAPIKey, "")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog, Usage: 0.5})
	dir := t.TempDir()

	res := execute(t, upstream, dir, "settings", "set", "--api-key", " sk-or-secretvalue1234 ", "--default-model", "openai/gpt-4o")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "API key verified! Credits used: 0.5")

	res = execute(t, upstream, dir, "settings", "get")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "sk-or-…1234")
	assert.NotContains(t, res.stdout, "secretvalue")
	assert.Contains(t, res.stdout, "default_model: openai/gpt-4o")
	assert.Contains(t, res.stdout, filepath.Join(dir, "settings.toml"))

	// Unset flags keep the stored values.
	res = execute(t, upstream, dir, "settings", "set", "--default-model", "anthropic/claude-3-opus")
	require.NoError(t, res.err)
	res = execute(t, upstream, dir, "settings", "get")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "sk-or-…1234")
	assert.Contains(t, res.stdout, "default_model: anthropic/claude-3-opus")
}

func TestSettingsSetRejectsInvalidValues(t *testing.T) {
	t.Setenv(envAPIKey, "")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog})
	dir := t.TempDir()

	res := execute(t, upstream, dir, "settings", "set", "--api-key", "sk-wrong", "--default-model", "openai/gpt-4o")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, models.ErrValidation)

	res = execute(t, upstream, dir, "settings", "set", "--api-key", "sk-or-good", "--default-model", "nope/unknown")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Invalid model identifier")

	_, err := os.Stat(filepath.Join(dir, "settings.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSettingsSetWarnsWhenCatalogIsDown(t *testing.T) {
	t.Setenv(envAPIKey, "")
	upstream := openroutertest.New(t, openroutertest.Upstream{ModelsErr: true})

	res := execute(t, upstream, t.TempDir(), "settings", "set", "--api-key", "sk-or-good", "--default-model", "any/model")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "warning: Could not validate model")
}

func TestRunNonStreamingSavesAndCopies(t *testing.T) {
	t.Setenv(envAPIKey, "sk-or-test")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog, Reply: "Launch day is here!"})
	dir := t.TempDir()

	var copied string
	prev := clipboardWrite
	clipboardWrite = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { clipboardWrite = prev })

	res := execute(t, upstream, dir, "run", "write_tweet", "we", "shipped", "--copy", "--save", "--save-dir", dir)
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "Using ")
	assert.Contains(t, res.stdout, "Launch day is here!")
	assert.Equal(t, "Launch day is here!", copied)
	assert.Contains(t, res.stderr, "Copied!")

	saved, err := filepath.Glob(filepath.Join(dir, "ai-*.txt"))
	require.NoError(t, err)
	require.Len(t, saved, 1)
	data, err := os.ReadFile(saved[0])
	require.NoError(t, err)
	assert.Equal(t, "Launch day is here!", string(data))

	reqs := upstream.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0]["messages"].([]any)[1].(map[string]any)["content"], "we shipped")
}

func TestRunStreamsFromStdin(t *testing.T) {
	t.Setenv(envAPIKey, "sk-or-test")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog, Deltas: []string{"Short ", "summary."}})
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.yaml")
	config := "openrouter:\n  base_url: " + upstream.URL + "\nsettings:\n  path: " + filepath.Join(dir, "settings.toml") + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetIn(strings.NewReader("A long article about Go."))
	root.SetArgs([]string{"--config", configPath, "run", "analyze_summarize", "--file", "-"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	out := stdout.String()
	assert.Contains(t, out, "Short summary.")
	assert.Less(t, strings.Index(out, "Short summary."), strings.LastIndex(out, "Using "))
}

func TestRunFailureIsReported(t *testing.T) {
	t.Setenv(envAPIKey, "")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog})

	res := execute(t, upstream, t.TempDir(), "run", "write_tweet", "hello")
	require.Error(t, res.err)
	assert.True(t, IsReported(res.err))
	assert.ErrorIs(t, res.err, models.ErrConfiguration)
	assert.NotEmpty(t, res.stdout)
}

func TestRunWithoutContent(t *testing.T) {
	t.Setenv(envAPIKey, "sk-or-test")
	upstream := openroutertest.New(t, openroutertest.Upstream{Models: catalog, Reply: "x"})

	res := execute(t, upstream, t.TempDir(), "run", "write_tweet")
	require.Error(t, res.err)
	assert.True(t, IsReported(res.err))
	assert.Empty(t, upstream.Requests())
}

func TestTerminalSinkPrintsOnlyNewStreamText(t *testing.T) {
	var buf bytes.Buffer
	sink := &terminalSink{w: &buf}
	ctx := context.Background()

	for _, content := range []string{"He", "Hello", "Hello, world"} {
		require.NoError(t, sink.Send(ctx, overlay.UpdateStreamingResult(content, "summarize")))
	}
	assert.Equal(t, "Hello, world", buf.String())
}

func TestIsReported(t *testing.T) {
	assert.False(t, IsReported(os.ErrNotExist))
	assert.True(t, IsReported(reportedError{err: os.ErrNotExist}))
}
