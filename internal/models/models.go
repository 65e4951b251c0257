package models

import "time"

// Config defines the user settings
type Config struct {
	LogLevel string        `yaml:"log_level" env:"FIREWATCH_LOG_LEVEL"`
	Backend  BackendConfig `yaml:"backend"`
	Session  SessionConfig `yaml:"session"`
	Display  DisplayConfig `yaml:"display"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Status   StatusConfig  `yaml:"status"`
}

type BackendConfig struct {
	URL             string `yaml:"url" env:"FIREWATCH_BACKEND_URL"`
	StreamPath      string `yaml:"stream_path" env:"FIREWATCH_STREAM_PATH"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" env:"FIREWATCH_BACKEND_TIMEOUT"`
	MaxMessageBytes int    `yaml:"max_message_bytes" env:"FIREWATCH_MAX_MESSAGE_BYTES"`
}

type SessionConfig struct {
	RestartSettleMillis int `yaml:"restart_settle_ms" env:"FIREWATCH_RESTART_SETTLE_MS"`
	HistoryLimit        int `yaml:"history_limit" env:"FIREWATCH_HISTORY_LIMIT"` // 0 keeps every tick
}

// DisplayConfig is the on-screen size of the headless player
type DisplayConfig struct {
	Width  int `yaml:"width" env:"FIREWATCH_DISPLAY_WIDTH"`
	Height int `yaml:"height" env:"FIREWATCH_DISPLAY_HEIGHT"`
}

type MQTTConfig struct {
	Broker        string `yaml:"broker" env:"FIREWATCH_MQTT_BROKER"`
	ClientID      string `yaml:"client_id" env:"FIREWATCH_MQTT_CLIENT_ID"`
	User          string `yaml:"user" env:"FIREWATCH_MQTT_USER"`
	Password      string `yaml:"password" env:"FIREWATCH_MQTT_PASSWORD"`
	AlertsTopic   string `yaml:"alerts_topic" env:"FIREWATCH_MQTT_ALERTS_TOPIC"`
	CommandsTopic string `yaml:"commands_topic" env:"FIREWATCH_MQTT_COMMANDS_TOPIC"`
}

type StatusConfig struct {
	Addr string `yaml:"addr" env:"FIREWATCH_STATUS_ADDR"`
}

// HazardState is the server-declared severity label of a tick.
// Values outside the known set are kept verbatim and treated as unknown.
type HazardState string

const (
	StateNormal        HazardState = "NORMAL"
	StatePreFire       HazardState = "PRE_FIRE"
	StateSmokeDetected HazardState = "SMOKE_DETECTED"
	StateFireGrowing   HazardState = "FIRE_GROWING"
	StateCall119       HazardState = "CALL_119"
)

// Severity returns the escalation rank of the state, or -1 when unknown.
func (s HazardState) Severity() int {
	switch s {
	case StateNormal:
		return 0
	case StatePreFire:
		return 1
	case StateSmokeDetected:
		return 2
	case StateFireGrowing:
		return 3
	case StateCall119:
		return 4
	default:
		return -1
	}
}

func (s HazardState) Known() bool {
	return s.Severity() >= 0
}

// Scores are the aggregate (smoothed) scores of one tick, each in [0,1]
type Scores struct {
	Fire   float64 `json:"fire"`
	Smoke  float64 `json:"smoke"`
	Hazard float64 `json:"hazard"`
}

// Box is a detection in native image-pixel space
type Box struct {
	Cls      int      `json:"cls"` // 0 fire, 1 smoke
	X1       float64  `json:"x1"`
	Y1       float64  `json:"y1"`
	X2       float64  `json:"x2"`
	Y2       float64  `json:"y2"`
	Conf     *float64 `json:"conf,omitempty"`
	Label    string   `json:"label,omitempty"`
	EMAScore *float64 `json:"ema_score,omitempty"`
}

// Tick is one detection result for one analyzed frame
type Tick struct {
	JobID  string      `json:"job_id,omitempty"`
	T      float64     `json:"t"`
	State  HazardState `json:"state"`
	Scores Scores      `json:"scores"`
	ImgW   int         `json:"img_w"`
	ImgH   int         `json:"img_h"`
	Boxes  []Box       `json:"boxes"`
}

// Stream message discriminators
const (
	MessageTick      = "tick"
	MessageEnd       = "end"
	MessageError     = "error"
	MessageHeartbeat = "heartbeat"
	MessageHello     = "hello"
)

// StreamMessage matches one pushed event of the backend stream
type StreamMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"job_id,omitempty"`
	T      float64     `json:"t"`
	State  HazardState `json:"state"`
	Scores Scores      `json:"scores"`
	ImgW   int         `json:"img_w"`
	ImgH   int         `json:"img_h"`
	Boxes  []Box       `json:"boxes"`
	Error  string      `json:"error,omitempty"`
}

// Tick converts a tick message, falling back to 640x480 when the native size is missing.
func (m StreamMessage) Tick() Tick {
	w, h := m.ImgW, m.ImgH
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	return Tick{
		JobID:  m.JobID,
		T:      m.T,
		State:  m.State,
		Scores: m.Scores,
		ImgW:   w,
		ImgH:   h,
		Boxes:  m.Boxes,
	}
}

// AlertLogEntry is created on an alert-worthy transition. Immutable once created.
type AlertLogEntry struct {
	ID        string      `json:"id"`
	JobID     string      `json:"job_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	MediaTime float64     `json:"media_time"`
	State     HazardState `json:"state"`
	Scores    Scores      `json:"scores"`
}

// AlertMessage is the published payload for a new alert entry
type AlertMessage struct {
	Type  string        `json:"type"` // "alert"
	Entry AlertLogEntry `json:"entry"`
}

type ControlCommand string

const (
	CommandPause  ControlCommand = "pause"
	CommandResume ControlCommand = "resume"
)

type ControlRequest struct {
	Cmd ControlCommand `json:"cmd"`
}

type UploadResponse struct {
	JobID    string `json:"job_id"`
	VideoURL string `json:"video_url"`
}

type EmergencyEmailRequest struct {
	JobID     string   `json:"job_id"`
	Scores    Scores   `json:"scores"`
	Timestamp *float64 `json:"timestamp"`
}

// EmergencyEmailResponse covers both the success ("message") and failure ("detail") bodies
type EmergencyEmailResponse struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// RemoteCommand arrives on the MQTT commands topic
type RemoteCommand struct {
	Cmd string `json:"cmd"` // pause, resume, restart, reset, email
}

// JobPhase is the lifecycle of the current job
type JobPhase string

const (
	PhaseIdle      JobPhase = "idle"
	PhaseCreated   JobPhase = "created"
	PhaseStreaming JobPhase = "streaming"
	PhasePaused    JobPhase = "paused"
	PhaseEnded     JobPhase = "ended"
	PhaseErrored   JobPhase = "errored"
)

// SessionSnapshot is a read-only copy of the session state
type SessionSnapshot struct {
	JobID         string   `json:"job_id"`
	MediaURL      string   `json:"media_url"`
	Phase         JobPhase `json:"phase"`
	Processing    bool     `json:"processing"`
	Paused        bool     `json:"paused"`
	LastError     string   `json:"last_error,omitempty"`
	RetryRequired bool     `json:"retry_required"`
	Connected     bool     `json:"connected"`
	Latest        *Tick    `json:"latest,omitempty"`
	Frames        int      `json:"frames"`
}

// TimelineEvent is one entry of the tick history
type TimelineEvent struct {
	Frame  int         `json:"frame"`
	T      float64     `json:"t"`
	State  HazardState `json:"state"`
	Scores Scores      `json:"scores"`
}

type TimelineSummary struct {
	TotalFrames  int             `json:"total_frames"`
	CurrentFrame int             `json:"current_frame"` // -1 when empty
	Recent       []TimelineEvent `json:"recent"`
	MaxFire      float64         `json:"max_fire"`
	MaxSmoke     float64         `json:"max_smoke"`
	HazardCount  int             `json:"hazard_count"`
}
