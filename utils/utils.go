package utils

import (
	"fmt"
	"strings"
)

func UrlQuery(s string) string { return strings.ReplaceAll(s, " ", "+") }

func Str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// FirstN truncates s to at most n bytes, appending an ellipsis when cut.
func FirstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
