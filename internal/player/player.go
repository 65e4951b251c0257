package player

import (
	"sync"
	"time"
)

// Clock is a headless media element: a playback position that advances in real time
// while playing, plus the on-screen display size used by the overlay.
type Clock struct {
	mu       sync.Mutex
	source   string
	playing  bool
	position time.Duration // position at anchor
	anchor   time.Time
	width    int
	height   int
	now      func() time.Time
}

func New(width, height int) *Clock {
	return &Clock{width: width, height: height, now: time.Now}
}

// Load replaces the media source and rewinds to zero, paused
func (c *Clock) Load(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
	c.playing = false
	c.position = 0
}

func (c *Clock) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.playing = true
	c.anchor = c.now()
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.position = c.positionLocked()
	c.playing = false
}

// Seek moves to seconds; negative values clamp to zero
func (c *Clock) Seek(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = time.Duration(max(seconds, 0) * float64(time.Second))
	c.anchor = c.now()
}

// Position is the current media time in seconds
func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked().Seconds()
}

func (c *Clock) positionLocked() time.Duration {
	if !c.playing {
		return c.position
	}
	return c.position + c.now().Sub(c.anchor)
}

func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *Clock) DisplaySize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// SetDisplaySize records a viewport change
func (c *Clock) SetDisplaySize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = width, height
}
