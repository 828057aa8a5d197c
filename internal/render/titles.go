package render

import (
	"strings"
	"time"
)

// Title is the overlay header for a task.
type Title struct {
	Text string `json:"title"`
	Icon string `json:"icon"`
}

func (t Title) String() string {
	return t.Icon + " " + t.Text
}

// FileName is the name a saved result gets:
// ai-<title-slug>-<YYYY-MM-DD>.txt.
func (t Title) FileName(now time.Time) string {
	slug := strings.ToLower(strings.Join(strings.Fields(t.Text), "-"))
	return "ai-" + slug + "-" + now.UTC().Format(time.DateOnly) + ".txt"
}

var (
	loadingTitle = Title{Text: "Processing", Icon: "⚙️"}
	resultTitle  = Title{Text: "Result", Icon: "✨"}
	errorTitle   = Title{Text: "Error", Icon: "❌"}
)

var taskTitles = map[string]Title{
	"email":     {Text: "Generated Email", Icon: "📧"},
	"blogPost":  {Text: "Blog Post", Icon: "📝"},
	"summarize": {Text: "Summary", Icon: "📋"},
	"reply":     {Text: "Generated Reply", Icon: "↩️"},
	"tweet":     {Text: "Social Media Post", Icon: "🐦"},
	"technical": {Text: "Technical Document", Icon: "📄"},
	"academic":  {Text: "Academic Paper", Icon: "🎓"},
	"code":      {Text: "Generated Code", Icon: "💻"},
	"translate": {Text: "Translation", Icon: "🌐"},
	"analyze":   {Text: "Analysis", Icon: "📊"},
	"research":  {Text: "Research", Icon: "🔍"},
	"meetings":  {Text: "Meeting Notes", Icon: "📅"},
	"proofread": {Text: "Proofreading", Icon: "✍️"},
	"cite":      {Text: "Citations", Icon: "📚"},
}

// LoadingTitle is the header shown while a task is being prepared.
func LoadingTitle(taskType string) Title {
	if t, ok := taskTitles[taskType]; ok {
		return t
	}
	return loadingTitle
}

// ResultTitle is the header shown with a finished or streaming result.
func ResultTitle(taskType string) Title {
	if t, ok := taskTitles[taskType]; ok {
		return t
	}
	return resultTitle
}

// ErrorTitle is the header shown with a failure.
func ErrorTitle() Title {
	return errorTitle
}
