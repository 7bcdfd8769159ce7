package executors

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// Interpolate replaces {{variable}} placeholders with session variable
// values. Unknown placeholders are left as-is so authoring mistakes stay
// visible in the delivered text.
func Interpolate(text string, vars map[string]any) string {
	if text == "" || !strings.Contains(text, "{{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := strings.TrimSpace(strings.Trim(m, "{}"))
		if v, ok := vars[name]; ok {
			return fmt.Sprintf("%v", v)
		}
		return m
	})
}
