package render

import (
	"bytes"
	"encoding/json"
	"strings"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// Escape makes s safe to interpolate into overlay markup.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}

var codeFields = []string{"code", "improvedCode", "testCode"}

const defaultLanguage = "plaintext"

// HTML renders r for the overlay content area. Every interpolated value is
// escaped.
func HTML(r Result) string {
	if !r.Structured() {
		return Escape(r.Text)
	}
	for _, key := range codeFields {
		if code, ok := r.StringField(key); ok {
			return codeBlock(r, code)
		}
	}
	return fieldList(r)
}

func codeBlock(r Result, code string) string {
	lang, ok := r.StringField("language")
	if !ok || strings.TrimSpace(lang) == "" {
		lang = defaultLanguage
	}

	var b strings.Builder
	b.WriteString(`<div class="code-block"><pre><code class="language-`)
	b.WriteString(Escape(lang))
	b.WriteString(`">`)
	b.WriteString(Escape(code))
	b.WriteString(`</code></pre>`)
	if explanation, ok := r.StringField("explanation"); ok && explanation != "" {
		b.WriteString(`<div class="code-explanation">`)
		b.WriteString(Escape(explanation))
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func fieldList(r Result) string {
	var b strings.Builder
	b.WriteString(`<div class="structured-result">`)
	for _, f := range r.Fields {
		b.WriteString(`<div class="result-item"><strong>`)
		b.WriteString(Escape(f.Key))
		b.WriteString(`:</strong> <span>`)
		b.WriteString(formatValue(f.Value))
		b.WriteString(`</span></div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func formatValue(raw json.RawMessage) string {
	if items, ok := decodeList(raw); ok {
		var b strings.Builder
		b.WriteString("<ul>")
		for _, item := range items {
			b.WriteString("<li>")
			b.WriteString(Escape(plain(item)))
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
		return b.String()
	}
	return Escape(plain(raw))
}

func decodeList(raw json.RawMessage) ([]json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}
	return items, true
}

// plain is the display text of a JSON value: strings unquoted, everything
// else compact JSON.
func plain(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
