package templates

import "regexp"

var tokenPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Substitute replaces every ${NAME} token in text with vars[NAME].
// Unresolved tokens are left verbatim. The text is scanned once, so a
// substituted value containing ${...} is never re-expanded.
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := token[2 : len(token)-1]
		if value, ok := vars[name]; ok {
			return value
		}
		return token
	})
}
