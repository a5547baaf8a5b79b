// Package jsonx extracts structured JSON values out of free-form LLM text.
// Chat models asked for JSON routinely wrap it in prose or markdown code
// fences; this package finds the first balanced JSON value and parses it
// tolerantly with gjson before unmarshalling into a caller-supplied type.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoJSON is returned when no balanced JSON object/array can be found.
var ErrNoJSON = fmt.Errorf("jsonx: no JSON value found in text")

// Extract returns the first balanced top-level JSON object or array
// substring in text, stripping any ```json fences around it.
func Extract(text string) (string, error) {
	text = stripFences(text)

	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if !gjson.Valid(candidate) {
					return "", ErrNoJSON
				}
				return candidate, nil
			}
		}
	}
	return "", ErrNoJSON
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	// drop the opening fence line (``` or ```json) and a trailing ``` line
	body := lines[1:]
	if len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "```" {
		body = body[:len(body)-1]
	}
	return strings.Join(body, "\n")
}

// Unmarshal extracts the first JSON value from text and decodes it into v.
func Unmarshal(text string, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("jsonx: failed to decode extracted JSON: %w", err)
	}
	return nil
}

// String is a convenience wrapper for pulling a single string field out of
// free-form text when the caller doesn't want a full struct, e.g. a judge
// response shaped as {"score": "yes", "rationale": "..."}.
func String(text, path string) (string, bool) {
	raw, err := Extract(text)
	if err != nil {
		return "", false
	}
	res := gjson.Get(raw, path)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}
