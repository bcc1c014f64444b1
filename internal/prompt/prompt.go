// Package prompt assembles the future-self persona prompt from whatever
// profile data exists for a user. Every section is optional; the prompt
// degrades gracefully down to the bare persona instructions.
package prompt

import (
	"fmt"
	"strings"

	"github.com/futureself/backend/internal/astro"
	"github.com/futureself/backend/internal/database"
)

// Data carries the profile slices the builder draws from. Nil or empty
// fields are skipped.
type Data struct {
	User            *database.User
	Style           *database.StyleProfile
	Details         []*database.PersonalDetail
	Chart           *astro.BirthChart
	Insights        *astro.Insights
	LocationContext string
	History         []*database.ChatMessage
	UserMessage     string
}

// Build assembles the persona prompt.
func Build(d Data) string {
	var b strings.Builder

	name := "the user"
	if d.User != nil && d.User.Name != "" {
		name = d.User.Name
	}

	fmt.Fprintf(&b, "You are %s's future self, speaking ten years from now. ", name)
	b.WriteString("You have lived through everything they are facing and came out wiser. ")
	b.WriteString("Speak in first person, warmly and directly, as someone who knows them completely. ")
	b.WriteString("Never mention being an AI, a model, or an assistant.\n")

	if d.User != nil && d.User.OnboardingAnswers != "" {
		b.WriteString("\nWhat they shared about themselves:\n")
		b.WriteString(d.User.OnboardingAnswers)
		b.WriteString("\n")
	}

	writeStyle(&b, d.Style)
	writeDetails(&b, d.Details)
	writeAstrology(&b, d.Chart, d.Insights)

	if d.LocationContext != "" {
		b.WriteString("\nWhere they are right now:\n")
		b.WriteString(d.LocationContext)
		b.WriteString("\n")
	}

	writeHistory(&b, name, d.History)

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s says: %s\n", name, d.UserMessage)
	b.WriteString("Reply as their future self:")

	return b.String()
}

func writeStyle(b *strings.Builder, s *database.StyleProfile) {
	if s == nil {
		return
	}

	var hints []string
	if s.AvgSentenceLength > 0 && s.AvgSentenceLength < 8 {
		hints = append(hints, "they write in short sentences; keep yours short too")
	} else if s.AvgSentenceLength >= 20 {
		hints = append(hints, "they write long, flowing sentences; match that rhythm")
	}
	if s.EmojiFrequency > 0.02 {
		hints = append(hints, "they use emoji freely; an occasional emoji fits")
	}
	if s.ExclamationDensity > 0.02 {
		hints = append(hints, "they are expressive and use exclamation marks")
	}
	if s.QuestionDensity > 0.02 {
		hints = append(hints, "they ask a lot of questions; it is fine to ask some back")
	}
	if len(hints) == 0 {
		return
	}

	b.WriteString("\nHow they write:\n")
	for _, h := range hints {
		b.WriteString("- " + h + "\n")
	}
}

func writeDetails(b *strings.Builder, details []*database.PersonalDetail) {
	if len(details) == 0 {
		return
	}

	b.WriteString("\nThings you remember about your past self:\n")
	for _, d := range details {
		if d.Phrases == "" {
			continue
		}
		fmt.Fprintf(b, "- %s: %s\n", d.Category, d.Phrases)
	}
}

func writeAstrology(b *strings.Builder, chart *astro.BirthChart, insights *astro.Insights) {
	if chart == nil {
		return
	}

	b.WriteString("\nTheir astrological profile:\n")
	fmt.Fprintf(b, "- Sun sign: %s\n", chart.SunSign)
	if insights != nil && insights.SunSignTraits != "" {
		fmt.Fprintf(b, "- %s\n", insights.SunSignTraits)
	}
}

func writeHistory(b *strings.Builder, name string, history []*database.ChatMessage) {
	if len(history) == 0 {
		return
	}

	b.WriteString("\nRecent conversation:\n")
	for _, m := range history {
		author := name
		if m.Author == database.AuthorAI {
			author = "Future self"
		}
		fmt.Fprintf(b, "%s: %s\n", author, m.Content)
	}
}
