package render

import (
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/lipgloss"
)

const defaultTerminalWidth = 100

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	noteStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// Terminal renders results for the command line.
type Terminal struct {
	Width int
}

func (t Terminal) width() int {
	if t.Width <= 0 {
		return defaultTerminalWidth
	}
	return t.Width
}

// Header is the styled title line plus an optional note such as the
// model in use.
func (t Terminal) Header(title Title, note string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(title.String()))
	if note != "" {
		b.WriteString("\n")
		b.WriteString(t.Note(note))
	}
	b.WriteString("\n\n")
	return b.String()
}

// Note renders secondary text.
func (t Terminal) Note(text string) string {
	return noteStyle.Render(text)
}

// Body renders r. Text is treated as markdown; structured replies become
// a markdown document before rendering.
func (t Terminal) Body(r Result) string {
	return string(markdown.Render(Markdown(r), t.width(), 2))
}

// Error renders a failure line.
func (t Terminal) Error(msg string) string {
	return errorStyle.Render(errorTitle.String()+" "+msg) + "\n"
}

// Markdown converts r to a markdown document.
func Markdown(r Result) string {
	if !r.Structured() {
		return r.Text
	}

	for _, key := range codeFields {
		if code, ok := r.StringField(key); ok {
			lang, _ := r.StringField("language")
			var b strings.Builder
			b.WriteString("```" + lang + "\n" + code + "\n```\n")
			if explanation, ok := r.StringField("explanation"); ok && explanation != "" {
				b.WriteString("\n" + explanation + "\n")
			}
			return b.String()
		}
	}

	var b strings.Builder
	for _, f := range r.Fields {
		b.WriteString("**" + f.Key + ":**")
		if items, ok := decodeList(f.Value); ok {
			b.WriteString("\n\n")
			for _, item := range items {
				b.WriteString("- " + plain(item) + "\n")
			}
			b.WriteString("\n")
			continue
		}
		b.WriteString(" " + plain(f.Value) + "\n\n")
	}
	return b.String()
}
