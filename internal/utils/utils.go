package utils

import (
	"strings"

	"github.com/apex/log/handlers/cli"
)

var normalPadding = cli.Default.Padding

// Indent indents apex log line to supplied level
func Indent(f func(s string), level int) func(string) {
	return func(s string) {
		cli.Default.Padding = normalPadding * level
		f(s)
		cli.Default.Padding = normalPadding
	}
}

// Pad creates left padding for printf members
func Pad(length int) string {
	if length > 0 {
		return strings.Repeat(" ", length)
	}
	return " "
}

// Unique returns a slice with only unique non-empty strings, in order
func Unique(s []string) []string {
	seen := make(map[string]bool, len(s))
	us := make([]string, 0, len(s))
	for _, elem := range s {
		if len(elem) != 0 && !seen[elem] {
			us = append(us, elem)
			seen[elem] = true
		}
	}
	return us
}

// Union returns the unique strings of a followed by those of b
func Union(a, b []string) []string {
	return Unique(append(append(make([]string, 0, len(a)+len(b)), a...), b...))
}

// Difference returns the strings of a that are not in b
func Difference(a, b []string) []string {
	mb := make(map[string]struct{}, len(b))
	for _, x := range b {
		mb[x] = struct{}{}
	}
	diff := []string{}
	for _, x := range a {
		if _, found := mb[x]; !found {
			diff = append(diff, x)
		}
	}
	return diff
}
