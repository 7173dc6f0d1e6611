package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object found in response")

// extractObject pulls the first complete JSON object out of a model reply that
// may carry code fences or prose around it.
func extractObject(response string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(response)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	if start == -1 {
		return nil, errNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	end := -1
	for i := start; i < len(trimmed) && end == -1; i++ {
		c := trimmed[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
	}
	if end == -1 {
		return nil, fmt.Errorf("no matching closing brace found")
	}

	candidate := trimmed[start:end]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("extracted object is not valid JSON")
	}
	return json.RawMessage(candidate), nil
}

// schemaInstruction renders the schema for prompts of providers without a
// native schema parameter.
func schemaInstruction(schema map[string]any) (string, error) {
	if len(schema) == 0 {
		return "Respond with a single JSON object and nothing else.", nil
	}
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return "Respond with a single JSON object and nothing else. It must validate against this JSON schema:\n" + string(b), nil
}
