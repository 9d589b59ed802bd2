// Package success holds the loose success-value predicates shared by the
// dispatch client and the callback reconciler.
package success

import "slices"

// Flag is the success flag of a callback: 1, "1", true, "true" or "True".
// Anything else, including absence, is false.
func Flag(v any) bool {
	return match(v, "1", "true", "True")
}

// Indicator reports whether a response or result field names success: 1,
// "1", true, "true", "success" or "Success".
func Indicator(v any) bool {
	return match(v, "1", "true", "success", "Success")
}

func match(v any, words ...string) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t == 1
	case int:
		return t == 1
	case string:
		return slices.Contains(words, t)
	}
	return false
}
