package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"slices"
	"time"

	"firewatch/internal/backend"
	"firewatch/internal/engine"
	"firewatch/internal/logger"
	"firewatch/internal/metrics"
	"firewatch/internal/models"
	"firewatch/internal/overlay"
	"firewatch/internal/stream"
)

var (
	ErrNoActiveJob = errors.New("no active analysis")
	ErrStopped     = errors.New("session loop is not running")
)

// User-visible messages
const (
	msgConnectionLost  = "connection to the analysis server was lost, please retry"
	msgRestartNotFound = "restart failed: analysis server not found, restart the backend process"
)

// Backend is the request/response side of the analysis server
type Backend interface {
	Upload(ctx context.Context, path string) (models.UploadResponse, error)
	Restart(ctx context.Context, jobID string) error
	Control(ctx context.Context, jobID string, cmd models.ControlCommand) error
	SendEmergencyEmail(ctx context.Context, req models.EmergencyEmailRequest) (string, error)
	MediaURL(videoURL string) string
}

type Streamer interface {
	Open(ctx context.Context, jobID string) (*stream.Conn, error)
}

// Player is the media element the overlay is synchronized with
type Player interface {
	Load(source string)
	Play()
	Pause()
	Seek(seconds float64)
	SetDisplaySize(width, height int)
}

type Option func(*Controller)

// WithSettleDelay sets the wait between a successful restart and reopening the stream
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.settle = d
	}
}

// WithHistoryLimit bounds the tick history; 0 keeps every tick
func WithHistoryLimit(n int) Option {
	return func(c *Controller) {
		c.historyLimit = max(n, 0)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller is the single writer of session state. All state below is owned by the
// Run goroutine; public methods post closures to it.
type Controller struct {
	backend  Backend
	streams  Streamer
	machine  *engine.Engine
	renderer *overlay.Renderer
	surface  overlay.Surface
	player   Player
	metrics  *metrics.Metrics

	settle       time.Duration
	historyLimit int

	ops  chan func()
	quit chan struct{}
	ctx  context.Context

	jobID         string
	mediaURL      string
	phase         models.JobPhase
	processing    bool
	paused        bool
	lastError     string
	retryRequired bool
	latest        *models.Tick
	history       []models.TimelineEvent
	frames        int
	conn          *stream.Conn
	reopen        *time.Timer

	// bumped whenever session data is replaced; in-flight results of the old data are discarded
	epoch uint64

	// identifies the latest restart request
	restartSeq uint64
}

func New(b Backend, streams Streamer, machine *engine.Engine, renderer *overlay.Renderer, surface overlay.Surface, player Player, opts ...Option) *Controller {
	c := &Controller{
		backend:  b,
		streams:  streams,
		machine:  machine,
		renderer: renderer,
		surface:  surface,
		player:   player,
		settle:   time.Second,
		ops:      make(chan func()),
		quit:     make(chan struct{}),
		ctx:      context.Background(),
		phase:    models.PhaseIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	return c
}

// Run dispatches operations and stream events until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer func() {
		c.stopReopen()
		c.closeStream()
		close(c.quit)
	}()

	logger.Info("Session controller started")

	for {
		// A nil channel blocks, so only the current connection is ever read
		var events <-chan stream.Event
		if c.conn != nil {
			events = c.conn.Events()
		}

		select {
		case <-ctx.Done():
			logger.Info("Session controller stopped")
			return ctx.Err()
		case op := <-c.ops:
			op()
		case ev, ok := <-events:
			if !ok {
				c.conn = nil
				continue
			}
			c.handle(ev)
		}
	}
}

// do runs fn on the loop and waits for it
func (c *Controller) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	op := func() {
		fn()
		close(done)
	}
	select {
	case c.ops <- op:
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// post queues fn without waiting
func (c *Controller) post(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.quit:
	}
}

func (c *Controller) handle(ev stream.Event) {
	switch ev.Kind {
	case stream.KindTick:
		c.onTick(ev.Tick)
	case stream.KindEnd:
		c.onStreamEnd()
	case stream.KindError:
		c.onStreamError(ev.Err, false)
	case stream.KindDisconnected:
		c.onStreamError(msgConnectionLost, true)
	}
}

func (c *Controller) onTick(tick models.Tick) {
	c.latest = &tick
	c.history = append(c.history, models.TimelineEvent{
		Frame:  c.frames,
		T:      tick.T,
		State:  tick.State,
		Scores: tick.Scores,
	})
	c.frames++
	if c.historyLimit > 0 && len(c.history) > c.historyLimit {
		c.history = slices.Delete(c.history, 0, len(c.history)-c.historyLimit)
	}
	if c.phase == models.PhaseCreated {
		c.phase = models.PhaseStreaming
	}

	c.machine.Observe(tick)
	c.renderer.Render(c.surface, tick)
}

func (c *Controller) onStreamEnd() {
	logger.Infof("Analysis of job %s finished after %d frames", c.jobID, c.frames)
	c.processing = false
	c.phase = models.PhaseEnded
	c.closeStream()
}

// onStreamError records msg. Only a transport failure drops the connection and asks
// the user to retry.
func (c *Controller) onStreamError(msg string, transport bool) {
	c.processing = false
	c.lastError = msg
	c.retryRequired = transport
	c.phase = models.PhaseErrored
	if transport {
		c.closeStream()
	}
}

func (c *Controller) openStream() {
	conn, err := c.streams.Open(c.ctx, c.jobID)
	if err != nil {
		logger.Errorf("Failed to open stream for job %s: %v", c.jobID, err)
		c.onStreamError(msgConnectionLost, true)
		return
	}
	c.conn = conn
}

func (c *Controller) closeStream() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Controller) stopReopen() {
	if c.reopen != nil {
		c.reopen.Stop()
		c.reopen = nil
	}
}

func (c *Controller) reset() {
	c.closeStream()
	c.stopReopen()
	c.epoch++

	c.jobID = ""
	c.mediaURL = ""
	c.phase = models.PhaseIdle
	c.processing = false
	c.paused = false
	c.lastError = ""
	c.retryRequired = false
	c.latest = nil
	c.history = nil
	c.frames = 0

	c.machine.Reset()
	c.renderer.Clear(c.surface)
}

// StartSession resets all state and opens the stream of jobID
func (c *Controller) StartSession(ctx context.Context, jobID, mediaURL string) error {
	if jobID == "" {
		return stream.ErrEmptyJobID
	}
	return c.do(ctx, func() {
		c.reset()
		c.jobID = jobID
		c.mediaURL = mediaURL
		c.phase = models.PhaseCreated
		c.processing = true

		c.player.Load(mediaURL)
		c.player.Play()

		logger.Infof("Starting session for job %s", jobID)
		c.openStream()
	})
}

// Upload sends a video and starts a session for the created job
func (c *Controller) Upload(ctx context.Context, path string) error {
	resp, err := c.backend.Upload(ctx, path)
	if err != nil {
		logger.Errorf("Upload of %s failed: %v", path, err)
		doErr := c.do(context.WithoutCancel(ctx), func() {
			c.processing = false
			c.lastError = "upload failed: " + err.Error()
		})
		if doErr != nil {
			return fmt.Errorf("upload failed: %w (%w)", err, doErr)
		}
		return fmt.Errorf("upload failed: %w", err)
	}

	logger.Infof("Uploaded %s as job %s", path, resp.JobID)
	return c.StartSession(context.WithoutCancel(ctx), resp.JobID, c.backend.MediaURL(resp.VideoURL))
}

// RequestPlaybackControl tells the backend the media element started or stopped
// playing. Failures leave the paused flag unchanged and are not returned.
func (c *Controller) RequestPlaybackControl(ctx context.Context, playing bool) error {
	var jobID string
	var epoch uint64
	if err := c.do(ctx, func() { jobID, epoch = c.jobID, c.epoch }); err != nil {
		return err
	}
	if jobID == "" {
		return nil
	}

	cmd := models.CommandPause
	if playing {
		cmd = models.CommandResume
	}

	if err := c.backend.Control(ctx, jobID, cmd); err != nil {
		c.metrics.ControlFailures.Add(1)
		logger.Debugf("Playback control %s for job %s failed: %v", cmd, jobID, err)
		return nil
	}

	return c.do(context.WithoutCancel(ctx), func() {
		if c.epoch != epoch {
			return
		}
		c.paused = !playing
		switch {
		case c.paused && (c.phase == models.PhaseStreaming || c.phase == models.PhaseCreated):
			c.phase = models.PhasePaused
		case !c.paused && c.phase == models.PhasePaused:
			c.phase = models.PhaseStreaming
		}
		logger.Debugf("Analysis of job %s %sd", jobID, cmd)
	})
}

// Restart re-runs analysis of the current job from frame zero. The stream is reopened
// after the settle delay once the backend accepted the restart.
func (c *Controller) Restart(ctx context.Context) error {
	var jobID string
	var epoch, seq uint64
	err := c.do(ctx, func() {
		jobID = c.jobID
		if jobID == "" {
			c.lastError = ErrNoActiveJob.Error()
			return
		}
		c.stopReopen()
		c.restartSeq++
		seq = c.restartSeq
		epoch = c.epoch
	})
	if err != nil {
		return err
	}
	if jobID == "" {
		return ErrNoActiveJob
	}

	logger.Infof("Restarting analysis of job %s", jobID)
	restartErr := c.backend.Restart(ctx, jobID)

	err = c.do(context.WithoutCancel(ctx), func() {
		if c.epoch != epoch || c.restartSeq != seq {
			logger.Debugf("Discarding superseded restart result for job %s", jobID)
			return
		}

		if restartErr != nil {
			c.metrics.RestartFailures.Add(1)
			c.processing = false
			if errors.Is(restartErr, backend.ErrNotFound) {
				c.lastError = msgRestartNotFound
			} else {
				c.lastError = "restart failed: " + restartErr.Error()
			}
			logger.Warnf("Restart of job %s failed: %v", jobID, restartErr)
			return
		}

		c.epoch++
		epoch = c.epoch

		c.closeStream()
		c.latest = nil
		c.history = nil
		c.frames = 0
		c.machine.Reset()
		c.renderer.Clear(c.surface)

		c.processing = true
		c.paused = false
		c.lastError = ""
		c.retryRequired = false
		c.phase = models.PhaseCreated

		c.player.Seek(0)
		c.player.Play()

		c.reopen = time.AfterFunc(c.settle, func() {
			c.post(func() {
				if c.epoch != epoch || c.restartSeq != seq {
					return
				}
				c.reopen = nil
				logger.Infof("Reopening stream for job %s", jobID)
				c.openStream()
			})
		})
	})
	if err != nil {
		return err
	}
	if restartErr != nil {
		return fmt.Errorf("restart failed: %w", restartErr)
	}
	return nil
}

// ResetSession closes the stream and clears all state without contacting the backend
func (c *Controller) ResetSession(ctx context.Context) error {
	return c.do(ctx, func() {
		logger.Info("Resetting session")
		c.reset()
	})
}

// SendEmergencyEmail reports the latest scores of the current job
func (c *Controller) SendEmergencyEmail(ctx context.Context) (string, error) {
	var req models.EmergencyEmailRequest
	if err := c.do(ctx, func() {
		req.JobID = c.jobID
		if c.latest != nil {
			req.Scores = c.latest.Scores
			t := c.latest.T
			req.Timestamp = &t
		}
	}); err != nil {
		return "", err
	}
	if req.JobID == "" {
		return "", ErrNoActiveJob
	}

	msg, err := c.backend.SendEmergencyEmail(ctx, req)
	if err != nil {
		logger.Errorf("Emergency email for job %s failed: %v", req.JobID, err)
		return "", err
	}
	logger.Infof("Emergency email for job %s sent: %s", req.JobID, msg)
	return msg, nil
}

// DismissError clears the user-visible error
func (c *Controller) DismissError(ctx context.Context) error {
	return c.do(ctx, func() { c.lastError = "" })
}

// ClearAlerts empties the alert log
func (c *Controller) ClearAlerts(ctx context.Context) error {
	return c.do(ctx, func() { c.machine.Clear() })
}

// Resize records a new display size and redraws the latest tick
func (c *Controller) Resize(ctx context.Context, width, height int) error {
	return c.do(ctx, func() {
		c.player.SetDisplaySize(width, height)
		if c.latest != nil {
			c.renderer.Render(c.surface, *c.latest)
		} else {
			c.renderer.Clear(c.surface)
		}
	})
}

func (c *Controller) Snapshot(ctx context.Context) (models.SessionSnapshot, error) {
	var s models.SessionSnapshot
	err := c.do(ctx, func() {
		s = models.SessionSnapshot{
			JobID:         c.jobID,
			MediaURL:      c.mediaURL,
			Phase:         c.phase,
			Processing:    c.processing,
			Paused:        c.paused,
			LastError:     c.lastError,
			RetryRequired: c.retryRequired,
			Connected:     c.conn != nil && c.conn.ReadyState() == stream.Open,
			Frames:        c.frames,
		}
		if c.latest != nil {
			t := *c.latest
			t.Boxes = slices.Clone(t.Boxes)
			s.Latest = &t
		}
	})
	return s, err
}

// Alerts returns the alert log, most recent first
func (c *Controller) Alerts(ctx context.Context) ([]models.AlertLogEntry, error) {
	var entries []models.AlertLogEntry
	err := c.do(ctx, func() { entries = c.machine.Entries() })
	return entries, err
}

func (c *Controller) Timeline(ctx context.Context) (models.TimelineSummary, error) {
	var s models.TimelineSummary
	err := c.do(ctx, func() { s = Summarize(c.history, c.frames) })
	return s, err
}

// OverlayPNG encodes the current overlay surface
func (c *Controller) OverlayPNG(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	var encErr error
	if err := c.do(ctx, func() { encErr = png.Encode(&buf, c.surface.Image()) }); err != nil {
		return nil, err
	}
	if encErr != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", encErr)
	}
	return buf.Bytes(), nil
}
