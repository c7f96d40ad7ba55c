// Package codec converts between ACT workflow text and the document model,
// with defensive parsing and repair of common malformed inputs.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// parseValue coerces a raw assignment value. Strategies are tried in order:
// JSON object/array literal, quoted string, boolean literal, numeric literal,
// raw string with surrounding quotes stripped. Only a malformed JSON literal
// returns an error; every other input yields a value.
func parseValue(raw string) (any, error) {
	value := strings.TrimSpace(raw)

	if strings.HasPrefix(value, "{") || strings.HasPrefix(value, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			return nil, fmt.Errorf("malformed JSON literal: %w", err)
		}

		return parsed, nil
	}

	if unquoted, ok := unquote(value); ok {
		return unquoted, nil
	}

	switch value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	if number, err := strconv.ParseFloat(value, 64); err == nil {
		return number, nil
	}

	return strings.Trim(value, `"'`), nil
}

// unquote strips matching surrounding quotes, honoring escape sequences for
// double-quoted values.
func unquote(value string) (string, bool) {
	if len(value) < 2 {
		return "", false
	}

	if value[0] == '"' && value[len(value)-1] == '"' {
		if unquoted, err := strconv.Unquote(value); err == nil {
			return unquoted, true
		}

		return value[1 : len(value)-1], true
	}

	if value[0] == '\'' && value[len(value)-1] == '\'' {
		return value[1 : len(value)-1], true
	}

	return "", false
}

// coerceFloat forces a parsed value to a number, defaulting to 0. Position
// coordinates always pass through here.
func coerceFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if number, err := strconv.ParseFloat(strings.Trim(v, `"'`), 64); err == nil {
			return number
		}
	case bool:
		if v {
			return 1
		}
	}

	return 0
}

// coerceString renders a parsed value back to its string form.
func coerceString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
