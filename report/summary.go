// Package report turns a finished session into something a person reads:
// counts, the rounded score, strengths and the areas to improve.
package report

import (
	"fmt"
	"math"

	"fono/coach"
)

// Summary is derived from a SessionResult. Score keeps the fractional value
// the service sent; only the text forms round it.
type Summary struct {
	Correct         int
	Total           int
	Score           float64
	Percent         *float64
	Feedback        string
	Strengths       []string
	Improvements    []string
	DurationMinutes *int
}

func NewSummary(r coach.SessionResult) Summary {
	r = r.Clone()
	return Summary{
		Correct:         r.TotalCorrect,
		Total:           r.TotalWords,
		Score:           r.Score,
		Percent:         r.Percent,
		Feedback:        r.Feedback,
		Strengths:       r.Strengths,
		Improvements:    r.Improvements,
		DurationMinutes: r.DurationMinutes,
	}
}

// FormatScore rounds a 0-100 score to the nearest integer percentage.
func FormatScore(v float64) string {
	return fmt.Sprintf("%.0f%%", math.Round(v))
}

func (s Summary) ScoreText() string { return FormatScore(s.Score) }

func (s Summary) CountText() string { return fmt.Sprintf("%d/%d", s.Correct, s.Total) }

// Accuracy is the share of correct words, preferring the service's figure.
func (s Summary) Accuracy() float64 {
	if s.Percent != nil {
		return *s.Percent
	}
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total) * 100
}

// Grade buckets a score the way the result screen colors it.
type Grade int

const (
	GradeLow Grade = iota
	GradeFair
	GradeGood
)

func GradeOf(score float64) Grade {
	switch {
	case score >= 80:
		return GradeGood
	case score >= 60:
		return GradeFair
	}
	return GradeLow
}

func (g Grade) Icon() string {
	switch g {
	case GradeGood:
		return "🏆"
	case GradeFair:
		return "✅"
	}
	return "⚠️"
}
