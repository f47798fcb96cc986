// Package stringutil holds small string helpers shared by log call
// sites.
package stringutil

import "strings"

var oneLine = strings.NewReplacer("\r", "", "\n", " ")

// Ellipsis flattens s to a single trimmed line and caps it at max
// bytes, marking a cut with "...". A max of three or less leaves no
// room for the marker, so the string is cut hard instead.
func Ellipsis(s string, max int) string {
	if max < 0 {
		return ""
	}
	s = strings.TrimSpace(oneLine.Replace(s))
	switch {
	case len(s) <= max:
		return s
	case max <= 3:
		return s[:max]
	default:
		return s[:max-3] + "..."
	}
}
