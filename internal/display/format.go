// Package display holds stateless presentational derivations of hazard states and scores.
package display

import (
	"fmt"
	"math"

	"firewatch/internal/models"
)

type stateInfo struct {
	label    string
	color    string
	priority string
}

var states = map[models.HazardState]stateInfo{
	models.StateNormal:        {"Normal", "#28a745", "safe"},
	models.StatePreFire:       {"Pre-fire", "#ffc107", "warning"},
	models.StateSmokeDetected: {"Smoke detected", "#fd7e14", "caution"},
	models.StateFireGrowing:   {"Fire growing", "#dc3545", "danger"},
	models.StateCall119:       {"Call 119", "#ff3333", "emergency"},
}

var unknown = stateInfo{"Analyzing", "#6c757d", "neutral"}

func info(s models.HazardState) stateInfo {
	if i, ok := states[s]; ok {
		return i
	}
	return unknown
}

func StateLabel(s models.HazardState) string { return info(s).label }
func StateColor(s models.HazardState) string { return info(s).color }
func Priority(s models.HazardState) string   { return info(s).priority }

// ThreatLevel buckets the highest of the three scores
func ThreatLevel(scores models.Scores) string {
	m := max(scores.Fire, scores.Smoke, scores.Hazard)
	switch {
	case m >= 0.8:
		return "critical"
	case m >= 0.6:
		return "high"
	case m >= 0.4:
		return "medium"
	case m >= 0.2:
		return "low"
	default:
		return "minimal"
	}
}

// Percent formats a [0,1] score as "42.0%"
func Percent(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}

// BarWidth is the filled width of a score bar of the given total width
func BarWidth(score float64, width int) int {
	score = math.Min(math.Max(score, 0), 1)
	return int(math.Round(score * float64(width)))
}

// VideoTime formats media seconds as m:ss
func VideoTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
