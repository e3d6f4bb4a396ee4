package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"repcount/internal/capture"
	"repcount/internal/config"
	"repcount/internal/pose"
	"repcount/internal/services"
	"repcount/internal/session"
	"repcount/internal/ws"
)

func main() {
	// Command line flags override the environment.
	var (
		hostF     = flag.String("host", "", "Server host (overrides HTTP_ADDR host)")
		httpPortF = flag.String("http-port", "", "HTTP port (overrides HTTP_ADDR port)")
		deviceF   = flag.String("device", "", "Camera device, file or stream URL (overrides CAMERA_DEVICE)")
		dbgF      = flag.Bool("debug", false, "Log every request")
	)
	flag.Parse()

	var (
		logger *log.Logger
	)
	{
		logger = log.New(os.Stderr, "[repcount] ", log.Ltime)
	}

	cfg := config.Load()
	if *deviceF != "" {
		cfg.CameraDevice = *deviceF
	}
	addr, err := listenAddr(cfg.HTTPAddr, *hostF, *httpPortF)
	if err != nil {
		logger.Fatalf("invalid address: %v", err)
	}

	openSource, openSink, err := capture.New(cfg.Capture())
	if err != nil {
		logger.Fatalf("capture: %v", err)
	}
	detectors, err := pose.NewFactory(cfg.Pose())
	if err != nil {
		logger.Fatalf("pose: %v", err)
	}
	logger.Printf("capture backend %s, pose backend %s, camera %s", cfg.CaptureBackend, cfg.PoseBackend, cfg.CameraDevice)

	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatalf("create %s: %v", dir, err)
		}
	}

	live := session.New(session.Config{
		Source:   cfg.CameraDevice,
		Open:     openSource,
		Detector: detectors,
		Quality:  cfg.JPEGQuality,
	})

	hub := ws.NewCountHub()
	events, _ := live.Events().SubscribeChannel(64)

	var (
		sessionSvc *services.SessionImplementation
		batchSvc   *services.BatchImplementation
		healthSvc  *services.HealthImplementation
	)
	{
		sessionSvc = services.NewSessionService(live)
		batchSvc = services.NewBatchService(services.BatchConfig{
			Open:     openSource,
			Sink:     openSink,
			Detector: detectors,
			Quality:  cfg.JPEGQuality,
			Reports:  cfg.ReportsEnabled,
		})
		healthSvc = services.NewHealthService(readinessChecks(cfg, detectors))
	}

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(events)
	}()

	handleHTTPServer(ctx, addr, &httpServices{
		session: sessionSvc,
		batch:   batchSvc,
		health:  healthSvc,
		hub:     hub,
		cfg:     cfg,
	}, &wg, errc, logger, *dbgF)

	// Wait for signal.
	logger.Printf("exiting (%v)", <-errc)

	// Send cancellation signal to the goroutines. Stopping the session ends
	// open video streams so the server can drain.
	cancel()
	live.Stop()
	live.Events().Close()
	hub.Close()

	wg.Wait()
	logger.Println("exited")
}

// listenAddr applies the host and port flags to the configured address.
func listenAddr(base, host, port string) (string, error) {
	h, p, err := net.SplitHostPort(base)
	if err != nil {
		return "", fmt.Errorf("%q: %w", base, err)
	}
	if host != "" {
		h = host
	}
	if port != "" {
		p = port
	}
	return net.JoinHostPort(h, p), nil
}

func readinessChecks(cfg *config.Config, detectors pose.Factory) map[string]services.ReadinessCheck {
	checks := map[string]services.ReadinessCheck{}
	if cfg.CaptureBackend == "ffmpeg" {
		checks["ffmpeg"] = services.BinaryCheck("ffmpeg")
		checks["ffprobe"] = services.BinaryCheck("ffprobe")
	}

	switch cfg.PoseBackend {
	case pose.BackendHTTP, pose.BackendGRPC:
		// Remote backends are cheap to connect to; a probe connection runs
		// their health check.
		checks["pose"] = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			d, err := detectors(ctx)
			if err != nil {
				return err
			}
			return d.Close()
		}
	default:
		checks["python"] = services.BinaryCheck(cfg.PosePython)
	}
	return checks
}
