package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firewatch/internal/metrics"
	"firewatch/internal/models"
)

const tickJSON = `{"type":"tick","t":1.5,"state":"PRE_FIRE","scores":{"fire":0.3,"smoke":0.1,"hazard":0.2},"img_w":1280,"img_h":720,"boxes":[{"cls":0,"x1":10,"y1":20,"x2":30,"y2":40}]}`

// write sends raw stream text and flushes it to the client
func write(w http.ResponseWriter, chunks ...string) {
	for _, c := range chunks {
		fmt.Fprint(w, c)
	}
	w.(http.Flusher).Flush()
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.New()
	c := NewClient(models.BackendConfig{URL: srv.URL, StreamPath: "/events", MaxMessageBytes: 4096}, m)
	return c, m
}

func sseHandler(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		write(w, chunks...)
	}
}

// collect reads events until the channel closes
func collect(t *testing.T, conn *Conn) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for stream to close, got %d events", len(events))
			return nil
		}
	}
}

func kinds(events []Event) string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Kind.String()
	}
	return strings.Join(names, ",")
}

func open(t *testing.T, c *Client, jobID string) *Conn {
	t.Helper()
	conn, err := c.Open(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

func TestStream_Sequences(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{
			name:   "Malformed Then Tick",
			chunks: []string{"data: {not json\n\n", "data: " + tickJSON + "\n\n", "data: {\"type\":\"end\"}\n\n"},
			want:   "tick,end",
		},
		{
			name:   "End Then Closure",
			chunks: []string{"data: {\"type\":\"end\"}\n\n"},
			want:   "end",
		},
		{
			name:   "Mid-Stream Closure",
			chunks: []string{"data: " + tickJSON + "\n\n", "data: " + tickJSON + "\n\n"},
			want:   "tick,tick,disconnected",
		},
		{
			name: "Heartbeat And Hello Ignored",
			chunks: []string{
				"data: {\"type\":\"hello\"}\n\n",
				": keepalive\n",
				"data: {\"type\":\"heartbeat\"}\n\n",
				"data: {\"type\":\"future_kind\"}\n\n",
				"data: {\"type\":\"end\"}\n\n",
			},
			want: "end",
		},
		{
			name:   "Backend Error Then Closure",
			chunks: []string{"data: {\"type\":\"error\",\"error\":\"model crashed\"}\n\n"},
			want:   "error",
		},
		{
			name:   "Newline Delimited JSON",
			chunks: []string{tickJSON + "\n", "{\"type\":\"end\"}\n"},
			want:   "tick,end",
		},
		{
			name:   "SSE Fields Ignored",
			chunks: []string{"event: message\nid: 7\nretry: 1000\ndata: " + tickJSON + "\r\n\r\n", "data: {\"type\":\"end\"}\n\n"},
			want:   "tick,end",
		},
		{
			name:   "Multi-Line Data",
			chunks: []string{"data: {\"type\":\n", "data: \"end\"}\n\n"},
			want:   "end",
		},
		{
			name:   "Incomplete Event At EOF Discarded",
			chunks: []string{"data: " + tickJSON + "\n"},
			want:   "disconnected",
		},
		{
			name:   "Events After End Are Not Read",
			chunks: []string{"data: {\"type\":\"end\"}\n\n", "data: " + tickJSON + "\n\n"},
			want:   "end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, sseHandler(tt.chunks...))
			conn := open(t, c, "job-1")

			if got := kinds(collect(t, conn)); got != tt.want {
				t.Errorf("events = %q, want %q", got, tt.want)
			}
			if conn.ReadyState() != Closed {
				t.Errorf("ReadyState() = %s, want closed", conn.ReadyState())
			}
		})
	}
}

func TestStream_TickDecoding(t *testing.T) {
	c, m := newTestClient(t, sseHandler(
		"data: "+tickJSON+"\n\n",
		"data: {\"type\":\"tick\",\"t\":2,\"state\":\"NORMAL\",\"scores\":{\"fire\":0,\"smoke\":0,\"hazard\":0},\"boxes\":[]}\n\n",
		"data: {\"type\":\"end\"}\n\n",
	))
	conn := open(t, c, "job-42")

	events := collect(t, conn)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	first := events[0].Tick
	if first.JobID != "job-42" {
		t.Errorf("JobID = %q, want job-42", first.JobID)
	}
	if first.T != 1.5 || first.State != models.StatePreFire || first.ImgW != 1280 || first.ImgH != 720 {
		t.Errorf("unexpected tick: %+v", first)
	}
	if len(first.Boxes) != 1 || first.Boxes[0].X2 != 30 {
		t.Errorf("unexpected boxes: %+v", first.Boxes)
	}

	second := events[1].Tick
	if second.ImgW != 640 || second.ImgH != 480 {
		t.Errorf("native size = %dx%d, want 640x480 fallback", second.ImgW, second.ImgH)
	}

	if m.TicksReceived.Load() != 2 {
		t.Errorf("TicksReceived = %d, want 2", m.TicksReceived.Load())
	}
}

func TestStream_MalformedIsCounted(t *testing.T) {
	c, m := newTestClient(t, sseHandler(
		"data: {\"type\":\"tick\",\"t\":\"soon\"}\n\n",
		"data: ][\n\n",
		"data: {\"type\":\"heartbeat\"}\n\n",
		"data: {\"type\":\"end\"}\n\n",
	))
	conn := open(t, c, "job-1")
	collect(t, conn)

	if m.MalformedMessages.Load() != 2 {
		t.Errorf("MalformedMessages = %d, want 2", m.MalformedMessages.Load())
	}
	if m.Heartbeats.Load() != 1 {
		t.Errorf("Heartbeats = %d, want 1", m.Heartbeats.Load())
	}
	if m.StreamDisconnects.Load() != 0 {
		t.Errorf("StreamDisconnects = %d, want 0", m.StreamDisconnects.Load())
	}
}

func TestStream_BackendErrorMessage(t *testing.T) {
	c, _ := newTestClient(t, sseHandler(
		"data: {\"type\":\"error\",\"error\":\"model crashed\"}\n\n",
		"data: {\"type\":\"error\"}\n\n",
	))
	conn := open(t, c, "job-1")

	events := collect(t, conn)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Err != "model crashed" {
		t.Errorf("Err = %q, want 'model crashed'", events[0].Err)
	}
	if events[1].Err == "" {
		t.Error("error event without message has empty Err")
	}
}

func TestStream_OversizedLineSkipped(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		"data: {\"type\":\"tick\",\"pad\":\""+strings.Repeat("x", 500)+"\"}\n\n",
		"data: {\"type\":\"end\"}\n\n",
	))
	t.Cleanup(srv.Close)

	m := metrics.New()
	c := NewClient(models.BackendConfig{URL: srv.URL, StreamPath: "/events", MaxMessageBytes: 128}, m)
	conn := open(t, c, "job-1")

	if got := kinds(collect(t, conn)); got != "end" {
		t.Errorf("events = %q, want end", got)
	}
	if m.MalformedMessages.Load() != 1 {
		t.Errorf("MalformedMessages = %d, want 1", m.MalformedMessages.Load())
	}
}

func TestStream_NonOKIsDisconnect(t *testing.T) {
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	})
	conn := open(t, c, "job-1")

	events := collect(t, conn)
	if kinds(events) != "disconnected" {
		t.Fatalf("events = %q, want disconnected", kinds(events))
	}
	if !strings.Contains(events[0].Err, "404") {
		t.Errorf("Err = %q, want status code", events[0].Err)
	}
	if m.StreamsOpened.Load() != 0 {
		t.Errorf("StreamsOpened = %d, want 0", m.StreamsOpened.Load())
	}
}

func TestStream_DialFailureIsDisconnect(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(models.BackendConfig{URL: url, StreamPath: "/events"}, nil)
	conn := open(t, c, "job-1")

	if got := kinds(collect(t, conn)); got != "disconnected" {
		t.Errorf("events = %q, want disconnected", got)
	}
}

func TestStream_QueryEscapesJobID(t *testing.T) {
	got := make(chan string, 1)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got <- r.URL.Path + " " + r.URL.Query().Get("job_id")
		write(w, "data: {\"type\":\"end\"}\n\n")
	})
	conn := open(t, c, "a b&c")
	collect(t, conn)

	if v := <-got; v != "/events a b&c" {
		t.Errorf("request = %q", v)
	}
}

func TestStream_EmptyJobID(t *testing.T) {
	c := NewClient(models.BackendConfig{URL: "http://localhost:1"}, nil)
	if _, err := c.Open(context.Background(), ""); err != ErrEmptyJobID {
		t.Errorf("Open(\"\") error = %v, want ErrEmptyJobID", err)
	}
}

// endless streams ticks until the client goes away
func endless(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	for {
		write(w, "data: "+tickJSON+"\n\n")
		select {
		case <-r.Context().Done():
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStream_SecondOpenClosesFirst(t *testing.T) {
	c, m := newTestClient(t, endless)

	first := open(t, c, "job-1")
	if ev := <-first.Events(); ev.Kind != KindTick {
		t.Fatalf("first event = %s, want tick", ev.Kind)
	}
	if first.ReadyState() != Open {
		t.Errorf("ReadyState() = %s, want open", first.ReadyState())
	}

	second := open(t, c, "job-1")

	if first.ReadyState() != Closed {
		t.Errorf("first ReadyState() = %s, want closed", first.ReadyState())
	}
	if n := len(collect(t, first)); n != 0 {
		t.Errorf("discarded connection delivered %d events after switch", n)
	}

	if ev := <-second.Events(); ev.Kind != KindTick {
		t.Errorf("second event = %s, want tick", ev.Kind)
	}
	if live := m.LiveConnections.Load(); live != 1 {
		t.Errorf("LiveConnections = %d, want 1", live)
	}
}

func TestStream_CloseStopsDelivery(t *testing.T) {
	c, m := newTestClient(t, endless)
	conn := open(t, c, "job-1")
	<-conn.Events()

	conn.Close()
	conn.Close()

	if n := len(collect(t, conn)); n != 0 {
		t.Errorf("closed connection delivered %d events", n)
	}
	if m.StreamDisconnects.Load() != 0 {
		t.Errorf("local close counted as disconnect")
	}
	if live := m.LiveConnections.Load(); live != 0 {
		t.Errorf("LiveConnections = %d, want 0", live)
	}
}

func TestStream_ClientClose(t *testing.T) {
	c, _ := newTestClient(t, endless)
	conn := open(t, c, "job-1")
	<-conn.Events()

	c.Close()
	if conn.ReadyState() != Closed {
		t.Errorf("ReadyState() = %s after Client.Close", conn.ReadyState())
	}
	c.Close()
}
