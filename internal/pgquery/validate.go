package pgquery

import (
	"fmt"
	"strings"
)

var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"GRANT", "REVOKE", "COPY", "CALL", "DO",
}

var allowedStarts = []string{"SELECT", "EXPLAIN", "WITH", "SHOW"}

// Validate rejects any statement that is not a single read-only query.
// It strips comments, requires the statement to begin with an allowed
// keyword, rejects semicolons outside single-quoted string literals
// (multi-statement payloads; one trailing semicolon is tolerated), and
// rejects any forbidden top-level keyword.
func Validate(sql string) error {
	stripped := stripComments(sql)
	trimmed := strings.TrimSpace(stripped)
	if trimmed == "" {
		return fmt.Errorf("pgquery: empty statement")
	}

	body := trimmed
	if strings.HasSuffix(body, ";") {
		body = strings.TrimSpace(strings.TrimSuffix(body, ";"))
	}
	inString := false
	for _, r := range body {
		switch {
		case r == '\'':
			inString = !inString
		case r == ';' && !inString:
			return fmt.Errorf("pgquery: multi-statement payloads are not allowed")
		}
	}

	upper := strings.ToUpper(body)
	ok := false
	for _, kw := range allowedStarts {
		if strings.HasPrefix(upper, kw) {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("pgquery: statement must begin with SELECT, EXPLAIN, WITH, or SHOW")
	}

	fields := strings.FieldsFunc(upper, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z')
	})
	for _, tok := range fields {
		for _, bad := range forbiddenKeywords {
			if tok == bad {
				return fmt.Errorf("pgquery: forbidden keyword %q", bad)
			}
		}
	}

	return nil
}

// stripComments removes -- line comments and /* */ block comments. It is
// intentionally simple (no string-literal awareness beyond skipping content
// inside single quotes) since this package only ever receives a small,
// internally constructed set of queries, never arbitrary user SQL.
func stripComments(sql string) string {
	var b strings.Builder
	inString := false
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inString {
			b.WriteRune(r)
			if r == '\'' {
				inString = false
			}
			continue
		}
		switch {
		case r == '\'':
			inString = true
			b.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			b.WriteRune('\n')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
