package prompt

import (
	"regexp"
	"strings"
)

var (
	interestRegex = regexp.MustCompile(`(?i)\bi (?:love|like|enjoy|prefer)\s+([a-z][a-z0-9' -]{1,40}?)(?:[.,!?\n]|$)`)
	goalRegex     = regexp.MustCompile(`(?i)\bi (?:want to|hope to|plan to|dream of)\s+([a-z][a-z0-9' -]{1,40}?)(?:[.,!?\n]|$)`)
	worryRegex    = regexp.MustCompile(`(?i)\bi(?:'m| am) (?:worried|anxious|stressed) about\s+([a-z][a-z0-9' -]{1,40}?)(?:[.,!?\n]|$)`)
)

// ExtractDetails pulls personal-detail phrases out of a message, keyed
// by category. Categories with no matches are absent from the map.
func ExtractDetails(text string) map[string][]string {
	details := make(map[string][]string)

	for category, re := range map[string]*regexp.Regexp{
		"interests": interestRegex,
		"goals":     goalRegex,
		"worries":   worryRegex,
	} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			phrase := strings.TrimSpace(strings.ToLower(m[1]))
			if phrase != "" {
				details[category] = append(details[category], phrase)
			}
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}
