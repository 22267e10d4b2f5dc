// Package llmjson recovers JSON payloads from language model responses.
//
// Local models often wrap JSON in markdown fences, prepend conversational
// filler, or emit a <think>...</think> reasoning block first. Decode strips
// those, extracts the outermost object by brace position and unmarshals it.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoObject is returned when a response contains no JSON object.
var ErrNoObject = errors.New("no JSON object in response")

// Clean removes reasoning blocks and markdown code fences.
func Clean(resp string) string {
	s := resp
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	s = strings.TrimSpace(s)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}

// Object returns the substring spanning the first '{' to the last '}'.
func Object(resp string) (string, error) {
	s := Clean(resp)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", ErrNoObject
	}
	return s[start : end+1], nil
}

// Decode extracts the JSON object from resp and unmarshals it into v.
func Decode(resp string, v any) error {
	obj, err := Object(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("unmarshal model output: %w", err)
	}
	return nil
}

// Fields decodes the response into a map of raw field values.
func Fields(resp string) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := Decode(resp, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// String reads a string field from decoded fields. ok is false when the key
// is absent; err is non-nil when present with a non-string value.
func String(fields map[string]json.RawMessage, key string) (val string, ok bool, err error) {
	raw, present := fields[key]
	if !present || string(raw) == "null" {
		return "", false, nil
	}
	if err := json.Unmarshal(raw, &val); err != nil {
		return "", true, fmt.Errorf("field %q is not a string", key)
	}
	return val, true, nil
}
