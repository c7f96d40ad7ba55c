package codec

import (
	"regexp"
	"strings"
)

var (
	paramsLineRe   = regexp.MustCompile(`^(\s*params\s*=\s*)(.*)$`)
	positionLineRe = regexp.MustCompile(`^(\s*position[XY]\s*=\s*)"(-?[0-9]+(?:\.[0-9]+)?)"\s*$`)
)

// Repair rewrites two malformed patterns commonly produced by upstream
// generation, operating on raw lines before structural parsing:
//
//   - params assigned an empty or unrecoverable scalar become params = {}
//   - quoted numeric position values become bare numbers
//
// Repair is idempotent: Repair(Repair(text)) == Repair(text).
func Repair(text string) string {
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		if match := positionLineRe.FindStringSubmatch(line); match != nil {
			lines[i] = match[1] + match[2]

			continue
		}

		if match := paramsLineRe.FindStringSubmatch(line); match != nil {
			lines[i] = match[1] + repairParamsValue(match[2])
		}
	}

	return strings.Join(lines, "\n")
}

// repairParamsValue keeps any value the params normalization ladder can
// recover and rewrites the rest to an empty object.
func repairParamsValue(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "{}"
	}

	if _, ok := parseJSONObject(value); ok {
		return value
	}

	// A quoted JSON object survives; NormalizeParams unescapes it later.
	if strings.HasPrefix(value, `"{`) && strings.HasSuffix(value, `}"`) {
		return value
	}

	// Token-pair shorthand survives for the same reason.
	if unquoted, ok := unquote(value); ok {
		value = unquoted
	}

	if strings.Contains(value, ":") {
		return raw
	}

	return "{}"
}
