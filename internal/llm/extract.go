package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/muahq/mua/internal/models"
)

var (
	errNoJSON       = errors.New("no JSON object found in completion")
	errTrailingData = errors.New("unexpected data after JSON object")
)

// ExtractJSON returns the JSON object in text. It accepts a bare document,
// a fenced code block, or the first balanced object embedded in prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)

	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed), nil
	}

	if fenced, ok := stripCodeFence(trimmed); ok && json.Valid([]byte(fenced)) {
		return json.RawMessage(fenced), nil
	}

	if obj, ok := firstObject(trimmed); ok {
		return json.RawMessage(obj), nil
	}

	return nil, &models.StructuredOutputParseError{Raw: text, Err: errNoJSON}
}

// stripCodeFence returns the body of the first ``` fenced block.
func stripCodeFence(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}

	rest := s[start+3:]

	// Skip an info string such as "json".
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}

	return strings.TrimSpace(rest[:end]), true
}

// firstObject scans for the first balanced, valid {...} span, honoring
// string literals and escapes.
func firstObject(s string) (string, bool) {
	for from := 0; from < len(s); {
		open := strings.IndexByte(s[from:], '{')
		if open < 0 {
			return "", false
		}

		open += from
		depth := 0
		inString, escaped := false, false

		for i := open; i < len(s); i++ {
			ch := s[i]

			switch {
			case escaped:
				escaped = false
			case inString && ch == '\\':
				escaped = true
			case ch == '"':
				inString = !inString
			case inString:
			case ch == '{':
				depth++
			case ch == '}':
				depth--
				if depth == 0 {
					candidate := s[open : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}

					i = len(s)
				}
			}
		}

		from = open + 1
	}

	return "", false
}

// Decode unmarshals raw into v. Unknown fields, trailing data and missing
// or null required top-level keys are reported as StructuredOutputParseError.
func Decode(raw json.RawMessage, v any, required ...string) error {
	fail := func(err error) error {
		return &models.StructuredOutputParseError{Raw: string(raw), Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fail(err)
	}

	if dec.More() {
		return fail(errTrailingData)
	}

	if len(required) == 0 {
		return nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return fail(err)
	}

	for _, k := range required {
		if val, ok := keys[k]; !ok || string(val) == "null" {
			return fail(fmt.Errorf("missing required field %q", k))
		}
	}

	return nil
}
