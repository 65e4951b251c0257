package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"firewatch/internal/backend"
	"firewatch/internal/config"
	"firewatch/internal/display"
	"firewatch/internal/engine"
	"firewatch/internal/logger"
	"firewatch/internal/metrics"
	"firewatch/internal/models"
	"firewatch/internal/mqtt"
	"firewatch/internal/overlay"
	"firewatch/internal/player"
	"firewatch/internal/session"
	"firewatch/internal/status"
	"firewatch/internal/stream"

	"github.com/joho/godotenv"
)

// consolePublisher prints each alert and forwards it to MQTT when configured
type consolePublisher struct {
	mqtt *mqtt.Client
}

func (p *consolePublisher) Publish(topic string, payload interface{}) error {
	if msg, ok := payload.(models.AlertMessage); ok {
		e := msg.Entry
		fmt.Printf("ALERT %s [%s] at %s  fire %s  smoke %s  hazard %s\n",
			display.StateLabel(e.State), display.ThreatLevel(e.Scores), display.VideoTime(e.MediaTime),
			display.Percent(e.Scores.Fire), display.Percent(e.Scores.Smoke), display.Percent(e.Scores.Hazard))
	}
	if p.mqtt == nil {
		return nil
	}
	return p.mqtt.Publish(topic, payload)
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	videoPath := flag.String("video", "", "Video file to upload and analyze")
	jobID := flag.String("job", "", "Attach to an existing job instead of uploading")
	mediaURL := flag.String("media", "", "Media URL of -job (defaults to the backend's /media/uploads/<job>.mp4)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Error loading config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.Infof("Using analysis server at %s", cfg.Backend.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Clients
	m := metrics.New()
	backendClient := backend.NewClient(cfg.Backend)
	streamClient := stream.NewClient(cfg.Backend, m)

	publisher := &consolePublisher{}
	if cfg.MQTT.Broker != "" {
		mqttClient := mqtt.NewClient(cfg.MQTT)
		if err := mqttClient.Connect(); err != nil {
			logger.Errorf("Failed to connect to MQTT, alerts stay local: %v", err)
		} else {
			defer mqttClient.Disconnect()
			publisher.mqtt = mqttClient
		}
	}

	// 3. Initialize Engine and Session
	eng := engine.NewEngine(publisher, cfg.MQTT.AlertsTopic, engine.WithMetrics(m))
	clock := player.New(cfg.Display.Width, cfg.Display.Height)
	renderer := overlay.NewRenderer(clock, m)
	surface := overlay.NewImageSurface()

	ctrl := session.New(backendClient, streamClient, eng, renderer, surface, clock,
		session.WithSettleDelay(time.Duration(cfg.Session.RestartSettleMillis)*time.Millisecond),
		session.WithHistoryLimit(cfg.Session.HistoryLimit),
		session.WithMetrics(m),
	)

	loopDone := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(loopDone)
	}()

	// 4. Remote commands
	if publisher.mqtt != nil {
		cmds := make(chan models.RemoteCommand, 16)
		if err := publisher.mqtt.SubscribeCommands(cmds); err != nil {
			logger.Errorf("Failed to subscribe to commands: %v", err)
		}
		go runCommands(ctx, ctrl, cmds)
	}

	// 5. Status server
	if cfg.Status.Addr != "" {
		srv := status.NewServer(cfg.Status.Addr, ctrl, m.Handler())
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// 6. Start the session
	switch {
	case *videoPath != "":
		if err := ctrl.Upload(ctx, *videoPath); err != nil {
			logger.Errorf("%v", err)
		}
	case *jobID != "":
		media := *mediaURL
		if media == "" {
			media = backendClient.MediaURL("/media/uploads/" + *jobID + ".mp4")
		}
		if err := ctrl.StartSession(ctx, *jobID, media); err != nil {
			logger.Errorf("Failed to start session: %v", err)
		}
	default:
		logger.Info("No -video or -job given; waiting for commands")
	}

	// 7. Console until quit or signal
	go console(ctx, ctrl, stop)

	<-ctx.Done()
	logger.Info("Shutting down...")
	<-loopDone
}

// runCommands executes remote commands in arrival order
func runCommands(ctx context.Context, ctrl *session.Controller, cmds <-chan models.RemoteCommand) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-cmds:
			msg, err := ctrl.Command(ctx, cmd.Cmd)
			if err != nil {
				logger.Warnf("Remote command %q failed: %v", cmd.Cmd, err)
				continue
			}
			logger.Infof("Remote command %q: %s", cmd.Cmd, msg)
		}
	}
}

func console(ctx context.Context, ctrl *session.Controller, stop context.CancelFunc) {
	fmt.Println("commands: pause, resume, restart, reset, email, status, alerts, timeline, clear, dismiss, resize WxH, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			stop()
			return
		case "status":
			printStatus(ctx, ctrl)
		case "alerts":
			printAlerts(ctx, ctrl)
		case "timeline":
			printTimeline(ctx, ctrl)
		case "resize":
			var w, h int
			if len(fields) < 2 {
				fmt.Println("usage: resize WxH")
				continue
			}
			if _, err := fmt.Sscanf(fields[1], "%dx%d", &w, &h); err != nil {
				fmt.Println("usage: resize WxH")
				continue
			}
			if err := ctrl.Resize(ctx, w, h); err != nil {
				fmt.Println("error:", err)
			}
		default:
			msg, err := ctrl.Command(ctx, fields[0])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(msg)
		}
	}
}

func printStatus(ctx context.Context, ctrl *session.Controller) {
	s, err := ctrl.Snapshot(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("job %q phase=%s processing=%v paused=%v connected=%v frames=%d\n",
		s.JobID, s.Phase, s.Processing, s.Paused, s.Connected, s.Frames)
	if s.Latest != nil {
		fmt.Printf("  latest t=%s state=%s threat=%s fire=%s smoke=%s boxes=%d\n",
			display.VideoTime(s.Latest.T), display.StateLabel(s.Latest.State), display.ThreatLevel(s.Latest.Scores),
			display.Percent(s.Latest.Scores.Fire), display.Percent(s.Latest.Scores.Smoke), len(s.Latest.Boxes))
	}
	if s.LastError != "" {
		retry := ""
		if s.RetryRequired {
			retry = " (retry with 'restart')"
		}
		fmt.Printf("  error: %s%s\n", s.LastError, retry)
	}
}

func printAlerts(ctx context.Context, ctrl *session.Controller) {
	entries, err := ctrl.Alerts(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("no alerts")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %-15s video %s  fire %s  smoke %s  hazard %s\n",
			e.CreatedAt.Format("15:04:05"), display.StateLabel(e.State), display.VideoTime(e.MediaTime),
			display.Percent(e.Scores.Fire), display.Percent(e.Scores.Smoke), display.Percent(e.Scores.Hazard))
	}
}

func printTimeline(ctx context.Context, ctrl *session.Controller) {
	tl, err := ctrl.Timeline(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("frames %d, current %d, max fire %s, max smoke %s, hazardous ticks %d\n",
		tl.TotalFrames, tl.CurrentFrame+1, display.Percent(tl.MaxFire), display.Percent(tl.MaxSmoke), tl.HazardCount)
	for _, e := range tl.Recent {
		fmt.Printf("  #%d %s %s\n", e.Frame+1, display.VideoTime(e.T), display.StateLabel(e.State))
	}
}
