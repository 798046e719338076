package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSON = errors.New("no JSON found in response")

// decodeJSONList decodes a JSON array from a model response. The array may
// be wrapped in a markdown code fence or in an object under one of keys.
func decodeJSONList[T any](raw string, keys ...string) ([]T, error) {
	text := stripCodeFence(raw)

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return nil, errNoJSON
	}
	text = text[start:]

	if text[0] == '[' {
		var items []T
		if err := json.NewDecoder(strings.NewReader(text)).Decode(&items); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.NewDecoder(strings.NewReader(text)).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	for _, key := range keys {
		body, ok := wrapper[key]
		if !ok {
			continue
		}
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		return items, nil
	}
	return nil, fmt.Errorf("%w: object has none of %v", errNoJSON, keys)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
