// Package analytics aggregates stored emotion and bias analyses into
// per-day trend reports over a lookback window.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/futureself/backend/internal/database"
)

// Trend directions. A slope within ±stableBand reads as stable.
const (
	Increasing = "increasing"
	Decreasing = "decreasing"
	Stable     = "stable"

	stableBand = 0.01
)

// Point is the average value for all analyses recorded on one day.
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// Report is a trend over daily averages. Slope is the least-squares
// slope per day; Direction classifies it.
type Report struct {
	Type      string  `json:"type"`
	Days      int     `json:"days"`
	Points    []Point `json:"points"`
	Slope     float64 `json:"slope"`
	Direction string  `json:"direction"`
	Summary   string  `json:"summary"`

	// Distribution counts dominant emotions for emotion reports; nil
	// for bias reports.
	Distribution map[string]int `json:"distribution,omitempty"`

	// ImprovementPercent is the relative drop in toxicity from the
	// first day to the last; only set for bias reports.
	ImprovementPercent float64 `json:"improvement_percent,omitempty"`
}

// EmotionTrend builds the daily-average confidence trend and dominant
// emotion distribution over the window.
func EmotionTrend(analyses []*database.EmotionAnalysis, days int) Report {
	points := make(map[string][]float64)
	distribution := make(map[string]int)
	for _, a := range analyses {
		day := a.Timestamp.UTC().Format(time.DateOnly)
		points[day] = append(points[day], a.Confidence)
		distribution[a.DominantEmotion]++
	}

	report := buildReport("emotion", days, points)
	report.Distribution = distribution
	report.Summary = fmt.Sprintf(
		"Emotional confidence is %s over the last %d days across %d analyses.",
		report.Direction, days, len(analyses),
	)
	return report
}

// BiasTrend builds the daily-average toxicity trend over the window.
func BiasTrend(analyses []*database.BiasAnalysis, days int) Report {
	points := make(map[string][]float64)
	for _, a := range analyses {
		day := a.Timestamp.UTC().Format(time.DateOnly)
		points[day] = append(points[day], a.ToxicityScore)
	}

	report := buildReport("bias", days, points)
	report.ImprovementPercent = improvement(report.Points)
	report.Summary = fmt.Sprintf(
		"Toxicity is %s over the last %d days across %d analyses (%.1f%% improvement).",
		report.Direction, days, len(analyses), report.ImprovementPercent,
	)
	return report
}

func buildReport(reportType string, days int, byDay map[string][]float64) Report {
	dates := make([]string, 0, len(byDay))
	for day := range byDay {
		dates = append(dates, day)
	}
	sort.Strings(dates)

	points := make([]Point, 0, len(dates))
	for _, day := range dates {
		values := byDay[day]
		var sum float64
		for _, v := range values {
			sum += v
		}
		points = append(points, Point{
			Date:  day,
			Value: sum / float64(len(values)),
			Count: len(values),
		})
	}

	slope := leastSquaresSlope(points)
	return Report{
		Type:      reportType,
		Days:      days,
		Points:    points,
		Slope:     slope,
		Direction: direction(slope),
	}
}

// leastSquaresSlope fits value against day index. Fewer than two points
// has no trend.
func leastSquaresSlope(points []Point) float64 {
	n := float64(len(points))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func direction(slope float64) string {
	switch {
	case slope > stableBand:
		return Increasing
	case slope < -stableBand:
		return Decreasing
	default:
		return Stable
	}
}

// improvement is the relative drop from the first day's average to the
// last day's, as a percentage. Negative when things got worse.
func improvement(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	first, last := points[0].Value, points[len(points)-1].Value
	if first == 0 {
		return 0
	}
	return (first - last) / first * 100
}
