package codec

import (
	"encoding/json"
	"strings"
)

// NormalizeParams coerces an arbitrary parsed value into a parameter mapping.
// Params must always be a mapping after validation, never a string or nil,
// because node params feed directly into execution.
//
// Strategies, tried in order:
//  1. value is already a mapping: returned as-is
//  2. value is a string holding a JSON object: parsed
//  3. value is a doubly-quoted JSON string: unescaped and re-parsed
//  4. value is a "key:value,key:value" token list: split into string pairs
//  5. everything else: empty mapping
func NormalizeParams(value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case map[string]string:
		params := make(map[string]any, len(v))
		for key, val := range v {
			params[key] = val
		}

		return params
	case string:
		return normalizeParamsString(v)
	default:
		return map[string]any{}
	}
}

func normalizeParamsString(value string) map[string]any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return map[string]any{}
	}

	if params, ok := parseJSONObject(trimmed); ok {
		return params
	}

	// Doubly-quoted JSON: the whole object arrived as an escaped string
	// literal, e.g. "{\"url\": \"...\"}".
	if strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
			if params, ok := parseJSONObject(strings.TrimSpace(inner)); ok {
				return params
			}
		}
	}

	if params, ok := splitTokenPairs(trimmed); ok {
		return params
	}

	return map[string]any{}
}

func parseJSONObject(value string) (map[string]any, bool) {
	if !strings.HasPrefix(value, "{") {
		return nil, false
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(value), &params); err != nil {
		return nil, false
	}

	if params == nil {
		params = map[string]any{}
	}

	return params, true
}

// splitTokenPairs handles the "key:value,key:value" shorthand some upstream
// generators emit instead of a JSON object.
func splitTokenPairs(value string) (map[string]any, bool) {
	if !strings.Contains(value, ":") {
		return nil, false
	}

	params := make(map[string]any)

	for _, token := range strings.Split(value, ",") {
		key, val, found := strings.Cut(token, ":")
		if !found {
			continue
		}

		key = strings.TrimSpace(strings.Trim(strings.TrimSpace(key), `"'`))
		if key == "" {
			continue
		}

		params[key] = strings.TrimSpace(strings.Trim(strings.TrimSpace(val), `"'`))
	}

	if len(params) == 0 {
		return nil, false
	}

	return params, true
}
