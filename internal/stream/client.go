package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"firewatch/internal/logger"
	"firewatch/internal/metrics"
	"firewatch/internal/models"

	"github.com/goccy/go-json"
)

var ErrEmptyJobID = errors.New("stream: empty job id")

type Kind int

const (
	KindTick Kind = iota
	KindEnd
	KindError        // error event reported by the backend
	KindDisconnected // transport closed without an end event
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindEnd:
		return "end"
	case KindError:
		return "error"
	case KindDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one dispatched stream event
type Event struct {
	Kind Kind
	Tick models.Tick
	Err  string
}

type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Client opens event streams against the backend. At most one connection is live per client.
type Client struct {
	baseURL    string
	streamPath string
	maxMessage int
	http       *http.Client
	metrics    *metrics.Metrics

	mu      sync.Mutex
	current *Conn
}

func NewClient(cfg models.BackendConfig, m *metrics.Metrics) *Client {
	if m == nil {
		m = metrics.New()
	}
	maxMessage := cfg.MaxMessageBytes
	if maxMessage <= 0 {
		maxMessage = 1 << 20
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		streamPath: cfg.StreamPath,
		maxMessage: maxMessage,
		// No timeout: the stream lives as long as the job
		http:    &http.Client{},
		metrics: m,
	}
}

// URL returns the stream endpoint of a job
func (c *Client) URL(jobID string) string {
	return fmt.Sprintf("%s%s?job_id=%s", c.baseURL, c.streamPath, url.QueryEscape(jobID))
}

// Open closes the previous connection, waiting for its reader to exit, then starts a
// new one. It does not block on the network; failures arrive as a KindDisconnected event.
func (c *Client) Open(ctx context.Context, jobID string) (*Conn, error) {
	if jobID == "" {
		return nil, ErrEmptyJobID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Close()
		c.current = nil
	}

	connCtx, cancel := context.WithCancel(ctx)
	conn := &Conn{
		jobID:  jobID,
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.current = conn

	go conn.run(connCtx, c, c.URL(jobID))
	return conn, nil
}

// Close closes the current connection, if any
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Close()
		c.current = nil
	}
}

// Conn is one stream connection. Its event channel is closed once the reader exits.
type Conn struct {
	jobID  string
	events chan Event
	state  atomic.Int32

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// reader goroutine only
	terminal bool
}

func (c *Conn) JobID() string {
	return c.jobID
}

func (c *Conn) Events() <-chan Event {
	return c.events
}

func (c *Conn) ReadyState() ReadyState {
	return ReadyState(c.state.Load())
}

// Close cancels the request and waits for the reader to exit. No event is delivered
// after Close returns. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
	})
}

// emit delivers ev unless the connection is being closed
func (c *Conn) emit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) run(ctx context.Context, client *Client, streamURL string) {
	live := false
	defer func() {
		c.state.Store(int32(Closed))
		if live {
			client.metrics.LiveConnections.Add(-1)
		}
		close(c.events)
		close(c.done)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		logger.Errorf("Failed to create stream request: %v", err)
		c.disconnected(ctx, client, err.Error())
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.http.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnf("Stream connection for job %s failed: %v", c.jobID, err)
			c.disconnected(ctx, client, err.Error())
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warnf("Stream for job %s returned status: %d", c.jobID, resp.StatusCode)
		c.disconnected(ctx, client, fmt.Sprintf("stream returned status: %d", resp.StatusCode))
		return
	}

	c.state.Store(int32(Open))
	live = true
	client.metrics.LiveConnections.Add(1)
	client.metrics.StreamsOpened.Add(1)
	logger.Infof("Stream opened for job %s", c.jobID)

	err = c.read(ctx, client, resp.Body)

	switch {
	case ctx.Err() != nil:
		logger.Debugf("Stream for job %s closed locally", c.jobID)
	case err == errEnded:
	case c.terminal:
		logger.Infof("Stream for job %s closed after backend error", c.jobID)
	default:
		reason := "stream closed by server"
		if err != nil && err != io.EOF {
			reason = err.Error()
		}
		logger.Warnf("Stream for job %s lost: %s", c.jobID, reason)
		c.disconnected(ctx, client, reason)
	}
}

func (c *Conn) disconnected(ctx context.Context, client *Client, reason string) {
	client.metrics.StreamDisconnects.Add(1)
	c.emit(ctx, Event{Kind: KindDisconnected, Err: reason})
}

var (
	errEnded   = errors.New("stream ended")
	errStopped = errors.New("stream stopped")
)

// read parses Server-Sent Events framing. Bare lines starting with '{' are taken as
// newline-delimited JSON events. An event still incomplete at EOF is discarded.
func (c *Conn) read(ctx context.Context, client *Client, body io.Reader) error {
	r := bufio.NewReader(body)
	var data []byte
	oversized := false

	for {
		line, tooLong, err := readLine(r, client.maxMessage)
		if err != nil {
			return err
		}
		if tooLong {
			client.metrics.MalformedMessages.Add(1)
			logger.Warnf("Discarding stream line over %d bytes", client.maxMessage)
			continue
		}

		switch {
		case len(line) == 0:
			if len(data) > 0 && !oversized {
				if err := c.dispatch(ctx, client, data); err != nil {
					return err
				}
			}
			data = data[:0]
			oversized = false
		case line[0] == ':':
			// comment
		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(line[5:], []byte(" "))
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, v...)
			if len(data) > client.maxMessage && !oversized {
				oversized = true
				client.metrics.MalformedMessages.Add(1)
				logger.Warnf("Discarding stream event over %d bytes", client.maxMessage)
			}
		case line[0] == '{':
			if err := c.dispatch(ctx, client, line); err != nil {
				return err
			}
		default:
			// event:, id:, retry: and unknown fields
		}
	}
}

// readLine returns one line without its terminator. Lines longer than limit are
// consumed and reported as tooLong. A final line without a newline is dropped.
func readLine(r *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		return line, tooLong, nil
	}
}

func (c *Conn) dispatch(ctx context.Context, client *Client, payload []byte) error {
	var msg models.StreamMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		client.metrics.MalformedMessages.Add(1)
		logger.Warnf("Discarding malformed stream message: %v", err)
		return nil
	}

	var ev Event
	switch msg.Type {
	case models.MessageTick:
		tick := msg.Tick()
		if tick.JobID == "" {
			tick.JobID = c.jobID
		}
		client.metrics.TicksReceived.Add(1)
		ev = Event{Kind: KindTick, Tick: tick}
	case models.MessageEnd:
		client.metrics.StreamEnds.Add(1)
		logger.Infof("Stream for job %s finished", c.jobID)
		if !c.emit(ctx, Event{Kind: KindEnd}) {
			return errStopped
		}
		return errEnded
	case models.MessageError:
		client.metrics.BackendErrors.Add(1)
		c.terminal = true
		reason := msg.Error
		if reason == "" {
			reason = "analysis failed"
		}
		logger.Warnf("Backend reported error for job %s: %s", c.jobID, reason)
		ev = Event{Kind: KindError, Err: reason}
	case models.MessageHeartbeat:
		client.metrics.Heartbeats.Add(1)
		logger.Debugf("Heartbeat for job %s", c.jobID)
		return nil
	default:
		logger.Debugf("Ignoring stream message of type %q", msg.Type)
		return nil
	}

	if !c.emit(ctx, ev) {
		return errStopped
	}
	return nil
}
