package session

import (
	"slices"

	"firewatch/internal/models"

	"github.com/samber/lo"
)

const recentEvents = 10

// Summarize computes timeline statistics over the kept history. total is the number of
// ticks received, which exceeds len(history) when the history is bounded.
func Summarize(history []models.TimelineEvent, total int) models.TimelineSummary {
	summary := models.TimelineSummary{
		TotalFrames:  max(total, len(history)),
		CurrentFrame: -1,
		Recent:       []models.TimelineEvent{},
	}
	if len(history) == 0 {
		return summary
	}

	summary.CurrentFrame = history[len(history)-1].Frame
	summary.Recent = slices.Clone(lo.Subset(history, -recentEvents, recentEvents))
	summary.MaxFire = lo.Max(lo.Map(history, func(e models.TimelineEvent, _ int) float64 {
		return e.Scores.Fire
	}))
	summary.MaxSmoke = lo.Max(lo.Map(history, func(e models.TimelineEvent, _ int) float64 {
		return e.Scores.Smoke
	}))
	summary.HazardCount = lo.CountBy(history, func(e models.TimelineEvent) bool {
		return e.State != models.StateNormal
	})
	return summary
}
