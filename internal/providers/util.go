package providers

import "strconv"

// parseAmount parses a decimal string amount. Empty or unparseable amounts
// report ok=false so callers can treat the item as malformed.
func parseAmount(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// toFloat coerces JSON numbers and numeric strings.
func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		return parseAmount(x)
	default:
		return 0, false
	}
}
