// Package overlay models the result panel shown next to the page: the
// messages that drive it and the state they leave behind.
package overlay

import (
	"context"
	"sync"

	"aiknife/internal/render"
)

// Message actions.
const (
	ActionShowLoading           = "showLoading"
	ActionShowResult            = "showResult"
	ActionUpdateStreamingResult = "updateStreamingResult"
	ActionShowError             = "showError"
)

// Message is one instruction to the overlay. Only the fields of its action
// are set.
type Message struct {
	Action   string         `json:"action"`
	TaskType string         `json:"taskType,omitempty"`
	Result   *render.Result `json:"result,omitempty"`
	Type     string         `json:"type,omitempty"`
	Model    string         `json:"model,omitempty"`
	Content  string         `json:"content,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func ShowLoading(taskType string) Message {
	return Message{Action: ActionShowLoading, TaskType: taskType}
}

func ShowResult(result render.Result, taskType, model string) Message {
	return Message{Action: ActionShowResult, Result: &result, Type: taskType, Model: model}
}

func UpdateStreamingResult(content, taskType string) Message {
	return Message{Action: ActionUpdateStreamingResult, Content: content, Type: taskType}
}

func ShowError(msg string) Message {
	return Message{Action: ActionShowError, Error: msg}
}

// Sink receives overlay messages for one request, in order.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

func (f SinkFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Recorder keeps every message it receives.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of what was recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Tee forwards each message to every sink and stops at the first error.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, msg Message) error {
		for _, s := range sinks {
			if err := s.Send(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}
