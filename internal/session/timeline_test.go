package session

import (
	"testing"

	"firewatch/internal/models"
)

func history(n int) []models.TimelineEvent {
	events := make([]models.TimelineEvent, n)
	for i := range events {
		state := models.StateNormal
		if i%3 == 0 {
			state = models.StateSmokeDetected
		}
		events[i] = models.TimelineEvent{
			Frame:  i,
			T:      float64(i) * 0.5,
			State:  state,
			Scores: models.Scores{Fire: float64(i) / 100, Smoke: float64(n-i) / 100},
		}
	}
	return events
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 0)
	if s.TotalFrames != 0 || s.CurrentFrame != -1 || s.HazardCount != 0 {
		t.Errorf("summary = %+v", s)
	}
	if s.Recent == nil || len(s.Recent) != 0 {
		t.Errorf("Recent = %v, want empty non-nil", s.Recent)
	}
}

func TestSummarize_Short(t *testing.T) {
	s := Summarize(history(4), 4)
	if s.TotalFrames != 4 || s.CurrentFrame != 3 {
		t.Errorf("frames = %d/%d", s.TotalFrames, s.CurrentFrame)
	}
	if len(s.Recent) != 4 || s.Recent[0].Frame != 0 {
		t.Errorf("Recent = %+v", s.Recent)
	}
	if s.MaxFire != 0.03 || s.MaxSmoke != 0.04 {
		t.Errorf("max = %v/%v", s.MaxFire, s.MaxSmoke)
	}
	// frames 0 and 3
	if s.HazardCount != 2 {
		t.Errorf("HazardCount = %d, want 2", s.HazardCount)
	}
}

func TestSummarize_RecentIsLastTen(t *testing.T) {
	h := history(25)
	s := Summarize(h, 25)
	if len(s.Recent) != 10 {
		t.Fatalf("len(Recent) = %d", len(s.Recent))
	}
	for i, e := range s.Recent {
		if e.Frame != 15+i {
			t.Errorf("Recent[%d].Frame = %d, want %d", i, e.Frame, 15+i)
		}
	}

	s.Recent[0].Frame = -5
	if h[15].Frame != 15 {
		t.Error("Recent aliases history")
	}
}

func TestSummarize_BoundedHistory(t *testing.T) {
	s := Summarize(history(5), 40)
	if s.TotalFrames != 40 {
		t.Errorf("TotalFrames = %d, want 40", s.TotalFrames)
	}
}
