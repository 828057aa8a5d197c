package overlay

import (
	"context"
	"sync"

	"aiknife/internal/render"
)

const (
	contentClass   = "ai-swiss-army-knife-content"
	loadingClass   = contentClass + " loading"
	streamingClass = contentClass + " ai-swiss-army-knife-stream"
	errorClass     = "ai-swiss-army-knife-error"

	selectingModel = "Selecting best model..."
)

// Panel is the state of one overlay. The zero value is a hidden, empty
// panel. Messages are applied in arrival order and the last one wins.
type Panel struct {
	Visible   bool   `json:"visible"`
	Title     string `json:"title"`
	ModelInfo string `json:"modelInfo"`
	Class     string `json:"class"`
	HTML      string `json:"html"`
	TaskType  string `json:"taskType,omitempty"`
}

// Apply updates p with msg. Unknown actions are ignored.
func (p *Panel) Apply(msg Message) {
	switch msg.Action {
	case ActionShowLoading:
		p.showLoading(msg.TaskType)

	case ActionShowResult:
		p.TaskType = msg.Type
		p.Visible = true
		p.Title = render.ResultTitle(msg.Type).String()
		p.ModelInfo = "Using " + msg.Model
		p.Class = contentClass
		if msg.Result != nil {
			p.HTML = render.HTML(*msg.Result)
		} else {
			p.HTML = ""
		}

	case ActionUpdateStreamingResult:
		if !p.Visible {
			p.showLoading(msg.Type)
		}
		p.TaskType = msg.Type
		p.Class = streamingClass
		p.HTML = render.Escape(msg.Content)

	case ActionShowError:
		p.Visible = true
		p.Title = render.ErrorTitle().String()
		p.ModelInfo = ""
		p.Class = contentClass
		p.HTML = `<div class="` + errorClass + `">` + render.Escape(msg.Error) + `</div>`
	}
}

func (p *Panel) showLoading(taskType string) {
	p.TaskType = taskType
	p.Visible = true
	p.Title = render.LoadingTitle(taskType).String()
	p.ModelInfo = selectingModel
	p.Class = loadingClass
	p.HTML = ""
}

// Hide closes the panel and clears its content.
func (p *Panel) Hide() {
	*p = Panel{}
}

// Board holds one panel per browser tab. It is safe for concurrent use.
type Board struct {
	mu     sync.Mutex
	panels map[int]*Panel
}

func NewBoard() *Board {
	return &Board{panels: make(map[int]*Panel)}
}

// Apply routes msg to the panel of tab, creating it on first use.
func (b *Board) Apply(tab int, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.panels[tab]
	if !ok {
		p = &Panel{}
		b.panels[tab] = p
	}
	p.Apply(msg)
}

// Snapshot returns a copy of the panel of tab.
func (b *Board) Snapshot(tab int) (Panel, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.panels[tab]
	if !ok {
		return Panel{}, false
	}
	return *p, true
}

// Hide removes the panel of tab.
func (b *Board) Hide(tab int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.panels[tab]
	delete(b.panels, tab)
	return ok
}

// Sink returns a Sink that applies messages to the panel of tab.
func (b *Board) Sink(tab int) Sink {
	return SinkFunc(func(_ context.Context, msg Message) error {
		b.Apply(tab, msg)
		return nil
	})
}
