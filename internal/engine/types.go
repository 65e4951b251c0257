package engine

import (
	"time"

	"firewatch/internal/metrics"
	"firewatch/internal/models"
)

// DefaultCapacity is the alert log bound
const DefaultCapacity = 50

// Engine mirrors the server-declared hazard state and keeps the alert log.
// It is not safe for concurrent use; the session loop owns it.
type Engine struct {
	previous models.HazardState
	log      []models.AlertLogEntry // most recent first
	capacity int

	publisher    Publisher
	publishTopic string
	now          func() time.Time
	metrics      *metrics.Metrics
}

// Publisher interface to decouple engine from specific mqtt implementation
type Publisher interface {
	Publish(topic string, payload interface{}) error
}
