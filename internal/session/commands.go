package session

import (
	"context"
	"fmt"
	"strings"
)

// Command runs a named user action, from the console or the remote commands topic.
// pause and resume need an active job. They drive the player first; the player stays
// authoritative when the backend rejects the control request.
func (c *Controller) Command(ctx context.Context, name string) (string, error) {
	cmd := strings.ToLower(strings.TrimSpace(name))
	switch cmd {
	case "pause", "resume", "play":
		playing := cmd != "pause"
		if err := c.requireJob(ctx); err != nil {
			return "", err
		}
		if playing {
			c.player.Play()
		} else {
			c.player.Pause()
		}
		if err := c.RequestPlaybackControl(ctx, playing); err != nil {
			return "", err
		}
		if playing {
			return "resumed", nil
		}
		return "paused", nil
	case "restart":
		if err := c.Restart(ctx); err != nil {
			return "", err
		}
		return "restarting analysis", nil
	case "reset":
		return "session reset", c.ResetSession(ctx)
	case "email":
		return c.SendEmergencyEmail(ctx)
	case "clear":
		return "alert log cleared", c.ClearAlerts(ctx)
	case "dismiss":
		return "error dismissed", c.DismissError(ctx)
	default:
		return "", fmt.Errorf("unknown command: %q", name)
	}
}

func (c *Controller) requireJob(ctx context.Context) error {
	var jobID string
	if err := c.do(ctx, func() { jobID = c.jobID }); err != nil {
		return err
	}
	if jobID == "" {
		return ErrNoActiveJob
	}
	return nil
}
