package engine

import (
	"slices"
	"time"

	"firewatch/internal/logger"
	"firewatch/internal/metrics"
	"firewatch/internal/models"

	"github.com/google/uuid"
)

type EngineOption func(*Engine)

// WithClock replaces the wall clock used for entry creation times
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func WithCapacity(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.capacity = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates the state machine. A nil publisher disables publishing.
func NewEngine(publisher Publisher, publishTopic string, opts ...EngineOption) *Engine {
	engine := &Engine{
		previous:     models.StateNormal,
		capacity:     DefaultCapacity,
		publisher:    publisher,
		publishTopic: publishTopic,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(engine)
	}

	if engine.metrics == nil {
		engine.metrics = metrics.New()
	}
	return engine
}

// ShouldAlert reports whether moving from prev to cur starts a new alert-worthy run.
// Unknown states never alert.
func ShouldAlert(prev, cur models.HazardState) bool {
	return cur != prev && cur != models.StateNormal && cur.Known()
}

// Observe feeds one tick. It returns the created entry, if any.
// The previous state is updated on every call.
func (e *Engine) Observe(tick models.Tick) (models.AlertLogEntry, bool) {
	prev := e.previous
	e.previous = tick.State

	if !ShouldAlert(prev, tick.State) {
		return models.AlertLogEntry{}, false
	}

	entry := models.AlertLogEntry{
		ID:        uuid.NewString(),
		JobID:     tick.JobID,
		CreatedAt: e.now(),
		MediaTime: tick.T,
		State:     tick.State,
		Scores:    tick.Scores,
	}

	e.log = slices.Insert(e.log, 0, entry)
	if len(e.log) > e.capacity {
		e.log = e.log[:e.capacity]
	}
	e.metrics.AlertsEmitted.Add(1)

	logger.Infof("Alert %s -> %s at t=%.2fs (fire %.2f, smoke %.2f)", prev, tick.State, tick.T, tick.Scores.Fire, tick.Scores.Smoke)
	e.publish(entry)

	return entry, true
}

func (e *Engine) publish(entry models.AlertLogEntry) {
	if e.publisher == nil {
		return
	}
	msg := models.AlertMessage{Type: "alert", Entry: entry}
	if err := e.publisher.Publish(e.publishTopic, msg); err != nil {
		logger.Errorf("Error publishing alert %s: %v", entry.ID, err)
	} else {
		logger.Debugf("[MQTT] Published alert %s (%s)", entry.ID, entry.State)
	}
}

// Previous is the last observed state
func (e *Engine) Previous() models.HazardState {
	return e.previous
}

// Entries returns a copy of the log, most recent first
func (e *Engine) Entries() []models.AlertLogEntry {
	return slices.Clone(e.log)
}

func (e *Engine) Len() int {
	return len(e.log)
}

// Clear empties the log but keeps the previous state, so an ongoing run does not re-alert.
func (e *Engine) Clear() {
	e.log = nil
}

// Reset returns the machine to its initial state
func (e *Engine) Reset() {
	e.log = nil
	e.previous = models.StateNormal
}
