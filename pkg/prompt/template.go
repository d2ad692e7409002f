package prompt

import "strings"

// Template is one immutable version of a stage's instruction text.
// Placeholders use the {name} form and are substituted at render time.
type Template struct {
	Stage       Stage
	Version     string
	Text        string
	Description string
}

// Render substitutes {name} placeholders with the given values. Unknown
// placeholders are left untouched so a missing variable is visible in the
// rendered prompt instead of vanishing.
func (t Template) Render(vars map[string]string) string {
	if len(vars) == 0 {
		return t.Text
	}
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(t.Text)
}

// Preview returns a truncated view of the template text for administrative
// listings. Truncation is rune-safe so Korean template text stays valid.
func (t Template) Preview(max int) string {
	text := strings.TrimSpace(t.Text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
