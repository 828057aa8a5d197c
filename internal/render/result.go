// Package render turns model replies into overlay HTML and terminal output.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Field is one top-level member of a structured reply, in reply order.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Result is either plain text or an ordered JSON object.
type Result struct {
	Text   string
	Fields []Field
}

// TextResult wraps a plain reply.
func TextResult(text string) Result {
	return Result{Text: text}
}

// Structured reports whether the result carries an object.
func (r Result) Structured() bool {
	return r.Fields != nil
}

// Field returns the raw value of key.
func (r Result) Field(key string) (json.RawMessage, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// StringField returns key when it holds a JSON string.
func (r Result) StringField(key string) (string, bool) {
	raw, ok := r.Field(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Parse interprets reply. When structured is set and the reply is a JSON
// object (optionally inside a markdown code fence) the fields are kept in
// order; anything else is text.
func Parse(reply string, structured bool) Result {
	if !structured {
		return TextResult(reply)
	}
	fields, err := decodeObject(stripFence(reply))
	if err != nil {
		return TextResult(reply)
	}
	return Result{Fields: fields}
}

// MarshalJSON writes text as a JSON string and objects with their original
// member order.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Structured() {
		return json.Marshal(r.Text)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := json.Compact(&buf, f.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads either form written by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		fields, err := decodeObject(string(data))
		if err != nil {
			return fmt.Errorf("decode result object: %w", err)
		}
		*r = Result{Fields: fields}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("result must be a string or an object: %w", err)
	}
	*r = TextResult(text)
	return nil
}

// String is the plain-text form used for copying and saving. A field that
// is not valid JSON is written as its raw text.
func (r Result) String() string {
	if !r.Structured() {
		return r.Text
	}
	compact, err := r.MarshalJSON()
	if err != nil {
		return r.rawObject()
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return string(compact)
	}
	return out.String()
}

func (r Result) rawObject() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %s", f.Key, f.Value)
	}
	b.WriteByte('}')
	return b.String()
}

func decodeObject(s string) ([]Field, error) {
	dec := json.NewDecoder(strings.NewReader(s))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("not a JSON object")
	}

	fields := []Field{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return fields, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
