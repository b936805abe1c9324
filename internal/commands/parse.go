package commands

import (
	"fmt"
	"strings"
	"unicode"
)

// Invocation is a parsed command line.
type Invocation struct {
	Name string
	// Rest is everything after the command name, trimmed.
	Rest string
}

// Parse splits a prefixed message into command name and remainder.
// ok is false when content does not start with prefix.
func Parse(prefix, content string) (Invocation, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Invocation{}, false
	}
	body := strings.TrimPrefix(content, prefix)
	name, rest := body, ""
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		name, rest = body[:i], body[i:]
	}
	if name == "" {
		return Invocation{}, false
	}
	return Invocation{Name: strings.ToLower(name), Rest: strings.TrimSpace(rest)}, true
}

// splitArgs splits s on whitespace, keeping double-quoted runs together.
// When n > 0, at most n arguments are returned and the last one holds the
// unsplit remainder (with one surrounding quote pair removed).
func splitArgs(s string, n int) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		started bool
	)
	s = strings.TrimSpace(s)
	for i := 0; i < len(s); i++ {
		if n > 0 && len(args) == n-1 && !started {
			args = append(args, unquote(strings.TrimSpace(s[i:])))
			return args, nil
		}
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (c == ' ' || c == '\t' || c == '\n'):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteByte(c)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
