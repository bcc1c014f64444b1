package location

import (
	"fmt"
	"strings"
)

// WeatherAdvice produces short advice strings for current conditions.
func WeatherAdvice(w *Weather) []string {
	if w == nil {
		return nil
	}

	var advice []string

	switch {
	case w.Temperature < 0:
		advice = append(advice, "It's freezing outside, bundle up properly.")
	case w.Temperature < 10:
		advice = append(advice, "It's cold out, bring a warm jacket.")
	case w.Temperature > 30:
		advice = append(advice, "It's very hot, stay hydrated and seek shade.")
	case w.Temperature > 25:
		advice = append(advice, "It's warm out, dress light.")
	}

	if w.Humidity > 80 {
		advice = append(advice, "High humidity, it may feel muggy.")
	} else if w.Humidity > 0 && w.Humidity < 30 {
		advice = append(advice, "The air is dry, drink extra water.")
	}

	if w.WindSpeed > 10 {
		advice = append(advice, "It's quite windy, secure loose items.")
	}

	switch strings.ToLower(w.Condition) {
	case "rain", "drizzle", "thunderstorm":
		advice = append(advice, "Rain expected, take an umbrella.")
	case "snow":
		advice = append(advice, "Snow expected, watch your footing.")
	case "clear":
		advice = append(advice, "Clear skies, a good time to be outside.")
	}

	return advice
}

// summarize renders a one-paragraph human-readable context summary,
// suitable for inclusion in a persona prompt.
func summarize(c *Context) string {
	var b strings.Builder

	place := c.Place.Name
	if c.Place.Country != "" {
		place = fmt.Sprintf("%s, %s", c.Place.Name, c.Place.Country)
	}
	fmt.Fprintf(&b, "In %s", place)

	if c.Weather != nil {
		fmt.Fprintf(&b, " it is %.0f°C", c.Weather.Temperature)
		if c.Weather.Description != "" {
			fmt.Fprintf(&b, " with %s", c.Weather.Description)
		}
	}
	b.WriteString(".")

	if len(c.Events) > 0 {
		names := make([]string, 0, 3)
		for _, e := range c.Events {
			if len(names) == 3 {
				break
			}
			names = append(names, e.Name)
		}
		fmt.Fprintf(&b, " Happening nearby: %s.", strings.Join(names, "; "))
	}

	if len(c.Advice) > 0 {
		b.WriteString(" " + strings.Join(c.Advice, " "))
	}

	return b.String()
}
