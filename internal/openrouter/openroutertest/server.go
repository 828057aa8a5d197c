// Package openroutertest provides a scripted OpenRouter upstream for tests.
package openroutertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"aiknife/internal/models"
)

// Upstream scripts the responses of a fake OpenRouter API.
type Upstream struct {
	Models    []models.ModelDescriptor
	ModelsErr bool

	// Reply is the message content of non-streaming completions.
	Reply string
	// Deltas are streamed one event each, followed by [DONE].
	Deltas []string
	// ChatStatus, when non-zero, fails completions with this status.
	ChatStatus  int
	ChatMessage string

	Usage float64
}

// Server is a running fake upstream.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []map[string]any
}

// New starts u and stops it when the test ends.
func New(t testing.TB, u Upstream) *Server {
	t.Helper()
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			if u.ModelsErr {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, map[string]any{"data": u.Models})

		case "/auth/key":
			writeJSON(w, map[string]any{"data": models.KeyInfo{Label: "test", Usage: u.Usage}})

		case "/chat/completions":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			s.mu.Lock()
			s.requests = append(s.requests, body)
			s.mu.Unlock()

			if u.ChatStatus != 0 {
				w.WriteHeader(u.ChatStatus)
				writeJSON(w, map[string]any{"error": map[string]any{"message": u.ChatMessage}})
				return
			}
			if stream, _ := body["stream"].(bool); stream {
				writeStream(w, u.Deltas)
				return
			}
			writeJSON(w, map[string]any{
				"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": u.Reply}}},
			})

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests returns the decoded bodies of every chat request received.
func (s *Server) Requests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.requests...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeStream(w http.ResponseWriter, deltas []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, d := range deltas {
		chunk, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{"content": d}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}
