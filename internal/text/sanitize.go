// Package text provides sanitization of model output before it is stored
// and returned to clients.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Speaker labels the model sometimes prepends to its own reply.
	speakerLabelRegex = regexp.MustCompile(`(?i)^\s*(future\s*self|assistant|ai)\s*:\s*`)

	// Boilerplate openers that break the persona.
	boilerplateRegex = regexp.MustCompile(`(?i)^\s*as an ai(?: language model| assistant)?,?\s*`)

	multiBlankRegex = regexp.MustCompile(`\n{3,}`)
)

// Sanitize normalizes whitespace in a reply: line endings become \n, runs
// of spaces collapse, leading/trailing whitespace is trimmed, and blank
// line runs are capped at one empty line.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, " ", "\n")
	s = strings.ReplaceAll(s, " ", "\n\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = normalizeLineWhitespace(line)
	}
	s = strings.Join(lines, "\n")

	s = multiBlankRegex.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Humanize strips artifacts that make a reply read like a chatbot: speaker
// labels, "As an AI" openers, and surrounding quote pairs. The result is
// then sanitized.
func Humanize(s string) string {
	s = strings.TrimSpace(s)
	s = speakerLabelRegex.ReplaceAllString(s, "")
	s = boilerplateRegex.ReplaceAllString(s, "")

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	return Sanitize(s)
}

func normalizeLineWhitespace(line string) string {
	var b strings.Builder
	var space bool

	for _, r := range line {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteRune(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}

	return strings.TrimSpace(b.String())
}
