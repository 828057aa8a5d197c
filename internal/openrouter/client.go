package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aiknife/internal/models"
)

const (
	// DefaultBaseURL is the public OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	contentTypeJSON = "application/json"
	userAgent       = "aiknife/0.1"
	maxErrorBody    = 64 * 1024
)

var defaultTransforms = []string{"middle-out"}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Referer    string
	Title      string
	HTTPClient *http.Client

	// RequestTimeout bounds non-streaming calls; zero disables it.
	RequestTimeout time.Duration
	// StreamTimeout bounds a whole streamed response; zero disables it.
	StreamTimeout time.Duration
	// MaxMalformedEvents caps consecutive undecodable stream payloads; zero disables the cap.
	MaxMalformedEvents int
}

// Client talks to the chat-completion, catalog and key endpoints.
type Client struct {
	apiKey     string
	baseURL    string
	referer    string
	title      string
	httpClient *http.Client

	requestTimeout time.Duration
	streamTimeout  time.Duration
	maxMalformed   int

	chatURL   string
	modelsURL string
	authURL   string
}

// New creates a client. The API key is required.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, models.Configurationf("OpenRouter API key not set. Please set it in the extension options.")
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	return &Client{
		apiKey:         opts.APIKey,
		baseURL:        baseURL,
		referer:        opts.Referer,
		title:          opts.Title,
		httpClient:     httpClient,
		requestTimeout: opts.RequestTimeout,
		streamTimeout:  opts.StreamTimeout,
		maxMalformed:   opts.MaxMalformedEvents,
		chatURL:        baseURL + "/chat/completions",
		modelsURL:      baseURL + "/models",
		authURL:        baseURL + "/auth/key",
	}, nil
}

// Chat sends one chat request. In non-streaming mode it returns the model's
// message content verbatim. In streaming mode every delta goes to
// opts.OnDelta and the returned string is empty.
func (c *Client) Chat(ctx context.Context, messages []models.Message, opts models.ChatOptions) (string, error) {
	if opts.Stream {
		if opts.OnDelta == nil {
			return "", models.Configurationf("a delta callback is required for streaming responses")
		}
		stream, err := c.OpenStream(ctx, messages, opts)
		if err != nil {
			return "", err
		}
		for delta, err := range stream.Deltas() {
			if err != nil {
				return "", err
			}
			opts.OnDelta(delta)
		}
		return "", nil
	}

	payload, err := buildChatPayload(messages, opts)
	if err != nil {
		return "", err
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, c.chatURL, payload)
	if err != nil {
		return "", err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openrouter chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if !isSuccess(httpResp.StatusCode) {
		return "", parseAPIError(httpResp)
	}

	var resp chatResponse
	if err := decodeJSON(httpResp.Body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openrouter response did not include choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenStream issues a streaming chat request and returns once the response
// status has been validated. The caller must either range over
// Stream.Deltas or call Stream.Close.
func (c *Client) OpenStream(ctx context.Context, messages []models.Message, opts models.ChatOptions) (*Stream, error) {
	opts.Stream = true
	payload, err := buildChatPayload(messages, opts)
	if err != nil {
		return nil, err
	}

	cancel := context.CancelFunc(func() {})
	if c.streamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.streamTimeout)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, c.chatURL, payload)
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("openrouter stream request failed: %w", err)
	}

	if !isSuccess(httpResp.StatusCode) {
		defer cancel()
		defer httpResp.Body.Close()
		return nil, parseAPIError(httpResp)
	}

	return newStream(ctx, httpResp.Body, cancel, c.maxMalformed), nil
}

// ListModels fetches the full model catalog.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	var resp struct {
		Data []models.ModelDescriptor `json:"data"`
	}
	if err := c.get(ctx, c.modelsURL, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	return resp.Data, nil
}

// KeyInfo reports usage and limits of the configured API key.
func (c *Client) KeyInfo(ctx context.Context) (models.KeyInfo, error) {
	var resp struct {
		Data models.KeyInfo `json:"data"`
	}
	if err := c.get(ctx, c.authURL, &resp); err != nil {
		return models.KeyInfo{}, fmt.Errorf("failed to check api key: %w", err)
	}
	return resp.Data, nil
}

func (c *Client) get(ctx context.Context, url string, target any) error {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	httpReq, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if !isSuccess(httpResp.StatusCode) {
		return parseAPIError(httpResp)
	}
	return decodeJSON(httpResp.Body, target)
}

func (c *Client) newRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	return req, nil
}

// chatPayload mirrors the remote request body. Optional fields must stay
// absent when unset; the remote side validates whatever it receives.
type chatPayload struct {
	Model          string                 `json:"model"`
	Messages       []models.Message       `json:"messages"`
	Stream         bool                   `json:"stream"`
	Temperature    float64                `json:"temperature"`
	Transforms     []string               `json:"transforms"`
	MaxTokens      *int                   `json:"max_tokens,omitempty"`
	Tools          json.RawMessage        `json:"tools,omitempty"`
	ToolChoice     json.RawMessage        `json:"tool_choice,omitempty"`
	ResponseFormat *models.ResponseFormat `json:"response_format,omitempty"`
}

func buildChatPayload(messages []models.Message, opts models.ChatOptions) (chatPayload, error) {
	if len(messages) == 0 {
		return chatPayload{}, models.Validationf("at least one message is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return chatPayload{}, models.Validationf("model must be specified")
	}

	transforms := opts.Transforms
	if transforms == nil {
		transforms = defaultTransforms
	}

	payload := chatPayload{
		Model:          opts.Model,
		Messages:       messages,
		Stream:         opts.Stream,
		Temperature:    opts.Temperature,
		Transforms:     transforms,
		Tools:          opts.Tools,
		ToolChoice:     opts.ToolChoice,
		ResponseFormat: opts.ResponseFormat,
	}
	if opts.MaxTokens > 0 {
		v := opts.MaxTokens
		payload.MaxTokens = &v
	}
	return payload, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &models.RemoteError{Status: resp.StatusCode, Message: apiErr.Error.Message}
	}

	return &models.RemoteError{
		Status:  resp.StatusCode,
		Message: "OpenRouter API error: " + statusText(resp),
	}
}

func statusText(resp *http.Response) string {
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func decodeJSON(reader io.Reader, target any) error {
	if err := json.NewDecoder(reader).Decode(target); err != nil {
		return fmt.Errorf("decode openrouter response: %w", err)
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
