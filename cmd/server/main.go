package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/intelligence-lair/threatwatch/internal/alert"
	"github.com/intelligence-lair/threatwatch/internal/camera"
	"github.com/intelligence-lair/threatwatch/internal/config"
	"github.com/intelligence-lair/threatwatch/internal/detect"
	"github.com/intelligence-lair/threatwatch/internal/logger"
	"github.com/intelligence-lair/threatwatch/internal/metrics"
	"github.com/intelligence-lair/threatwatch/internal/server"
	"github.com/intelligence-lair/threatwatch/internal/stream"
)

var (
	// Command-line flags
	configPath  = flag.String("config", "config.yaml", "Path to YAML config file (empty for defaults)")
	httpAddr    = flag.String("http", ":8080", "HTTP server address")
	metricsAddr = flag.String("metrics", ":9091", "Metrics server address")
	demoMode    = flag.Bool("demo", false, "Replace camera feeds with synthetic sources")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	logger.Info("Main", "Threat dashboard server starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Info("Main", "Config: %d cameras, detection endpoint %s",
		len(cfg.Cameras), cfg.Detection.Endpoint)

	m := metrics.New()

	classifier := detect.NewClassifier(cfg.Detection.ThreatClasses, cfg.Detection.PersonLabel)
	detector := detect.NewClient(cfg.Detection.Endpoint, cfg.Detection.ConfidenceThreshold, cfg.Detection.Timeout)
	annotator := detect.NewAnnotator(classifier, cfg.Stream.JPEGQuality)

	engine := alert.NewEngine(classifier, cfg.Alerts.Cooldown, cfg.Alerts.HistoryCapacity, alert.LevelThresholds{
		HighCount:      cfg.Alerts.Levels.HighCount,
		CriticalCount:  cfg.Alerts.Levels.CriticalCount,
		HighConfidence: cfg.Alerts.Levels.HighConfidence,
	})

	sup := stream.NewSupervisor()
	for _, cam := range cfg.Cameras {
		var src camera.Source
		if *demoMode {
			src = camera.NewSyntheticSource(cam.ID, cfg.Stream.DeliveryFPS)
			logger.Info("Main", "[%s] using synthetic source (demo mode)", cam.ID)
		} else {
			src = camera.NewMJPEGSource(cam.ID, cam.URL, cfg.Stream.ConnectTimeout, cfg.Stream.RetryInterval)
		}
		sup.Add(stream.NewPipeline(cam.ID, cam.Name, src, stream.PipelineOptions{
			Detector:         detector,
			Annotator:        annotator,
			Classifier:       classifier,
			Engine:           engine,
			Metrics:          m,
			Alerts:           sup.Alerts(),
			DeliveryInterval: cfg.DeliveryInterval(),
			RetryInterval:    cfg.Stream.RetryInterval,
		}))
	}

	srv := server.NewServer(server.Config{
		StatusInterval: cfg.Stream.StatusInterval,
	}, sup, engine, classifier, m)

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: srv.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	go func() {
		logger.Info("Main", "Metrics server on %s", *metricsAddr)
		if err := m.StartServer(*metricsAddr); err != nil {
			logger.Warn("Main", "Metrics server error: %v", err)
		}
	}()

	go func() {
		logger.Info("Main", "Dashboard on http://localhost%s", *httpAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "HTTP shutdown: %v", err)
	}

	cancel()
	sup.Stop()

	logger.Info("Main", "Server stopped")
}
