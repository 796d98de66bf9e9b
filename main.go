package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hoangtvse170014/checkout/internal/alert"
	"github.com/hoangtvse170014/checkout/internal/camera"
	"github.com/hoangtvse170014/checkout/internal/config"
	"github.com/hoangtvse170014/checkout/internal/detector"
	"github.com/hoangtvse170014/checkout/internal/export"
	"github.com/hoangtvse170014/checkout/internal/gate"
	"github.com/hoangtvse170014/checkout/internal/health"
	"github.com/hoangtvse170014/checkout/internal/logger"
	"github.com/hoangtvse170014/checkout/internal/phase"
	"github.com/hoangtvse170014/checkout/internal/pipeline"
	"github.com/hoangtvse170014/checkout/internal/retention"
	"github.com/hoangtvse170014/checkout/internal/scheduler"
	"github.com/hoangtvse170014/checkout/internal/service"
	"github.com/hoangtvse170014/checkout/internal/store"
	"github.com/hoangtvse170014/checkout/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (short)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting gate occupancy monitor",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcMgr := service.NewManager(log)

	st, err := store.New(cfg.Storage.DatabasePath, log)
	if err != nil {
		log.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Init(); err != nil {
		log.Error("Store self-test failed", "error", err)
		os.Exit(1)
	}

	bounds, loc, err := cfg.Phase.ToBounds()
	if err != nil {
		log.Error("Invalid phase configuration", "error", err)
		os.Exit(1)
	}
	clock := phase.NewClock(bounds, loc)

	gateCfg := cfg.Gate.ToGateConfig()
	counter := gate.NewCounter(gateCfg)

	detectorClient := detector.NewHTTPClient(detector.HTTPClientConfig{
		ServiceURL:          cfg.Detector.ServiceURL,
		Timeout:             cfg.Detector.Timeout,
		ConfidenceThreshold: cfg.Detector.ConfidenceThreshold,
		EnabledClasses:      cfg.Detector.EnabledClasses,
	}, log)

	frameWorker := pipeline.NewWorker(pipeline.Config{
		CameraID: cfg.Camera.ID,
	}, detectorClient, counter, st, log)

	ffmpegWrapper, err := camera.NewFFmpegWrapper(log)
	if err != nil {
		log.Error("ffmpeg not available, camera source cannot run", "error", err)
		os.Exit(1)
	}

	cameraSource := camera.NewSource(camera.SourceConfig{
		CameraID:          cfg.Camera.ID,
		URL:               cfg.Camera.URL,
		Username:          cfg.Camera.Username,
		Password:          cfg.Camera.Password,
		PollInterval:      cfg.Camera.PollInterval,
		ReconnectInterval: cfg.Camera.ReconnectInterval,
		JPEGQuality:       cfg.Camera.JPEGQuality,
		OnFrame:           frameWorker.OnFrame,
	}, ffmpegWrapper, log)

	dailyExporter := export.NewDailyExporter(st, clock, cfg.Export.DailyDir, log)
	rollingExporter := export.NewRollingExporter(cfg.Export.DailyDir, cfg.Export.SummaryDir, cfg.Export.WindowDays, log)
	retentionSweeper := retention.NewSweeper(cfg.Export.DailyDir, cfg.Storage.RetentionDays, log)

	// runExport produces the workbook for date, refreshes the rolling
	// summary, then sweeps expired per-day workbooks. It is the tick body of
	// the exporter worker's 30-minute cadence and is also handed to PhaseManager so a day reset or phase
	// boundary can drive the same pass on demand.
	runExport := func(ctx context.Context, date time.Time) error {
		if _, err := dailyExporter.Run(ctx, date); err != nil {
			return fmt.Errorf("daily export: %w", err)
		}
		if _, err := rollingExporter.Run(); err != nil {
			return fmt.Errorf("rolling export: %w", err)
		}
		if _, err := retentionSweeper.Run(time.Now()); err != nil {
			return fmt.Errorf("retention sweep: %w", err)
		}
		return nil
	}
	exportWorker := scheduler.NewTickerWorker("exporter", cfg.Export.TickInterval, runExport, log).WithFinalTick()

	phaseManager := phase.NewManager(st, clock, runExport, log, svcMgr.GetEventBus())
	phaseWorker := scheduler.NewTickerWorker("phase-manager", time.Minute, phaseManager.Tick, log)

	var alertSender alert.Sender
	if cfg.Alert.Enabled {
		alertSender = alert.NewSMTPSender(alert.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			FromAddress: cfg.SMTP.From,
			Password:    cfg.SMTP.Password,
			ToAddresses: cfg.SMTP.To,
		})
	}
	alertManager := alert.NewManager(st, clock, alertSender, cfg.Alert.Enabled, cfg.SMTP.Subject, log, svcMgr.GetEventBus())
	alertWorker := scheduler.NewTickerWorker("alert-manager", cfg.Alert.TickInterval, alertManager.Tick, log)

	retentionWorker := scheduler.NewTickerWorker("retention-sweeper", 24*time.Hour,
		func(ctx context.Context, now time.Time) error {
			_, err := retentionSweeper.Run(now)
			return err
		}, log)

	healthMgr := health.NewManager(log, svcMgr)
	healthMgr.RegisterChecker(health.NewDatabaseChecker(cfg.Storage.DatabasePath))
	healthMgr.RegisterChecker(health.NewDetectorServiceChecker(cfg.Detector.ServiceURL))
	healthMgr.RegisterChecker(health.NewExportChecker(cfg.Export.DailyDir, cfg.Export.SummaryDir))
	healthMgr.RegisterChecker(health.NewCameraChecker(func() (time.Time, bool) {
		return cameraSource.LastFrameTime(), cameraSource.IsConnected()
	}, cfg.Camera.PollInterval*5))

	webServer := web.NewServer(cfg.Service.StatusAddr, healthMgr, st, clock, log)
	webServer.SetVersion(version)

	// Registration order determines start order; Manager stops services in
	// reverse, so the frame worker and camera source (registered last) are
	// the first to stop on shutdown, draining in-flight events before the
	// exporter's final tick (registered earlier) runs over the now-settled
	// Store state.
	svcMgr.Register(webServer)
	svcMgr.Register(retentionWorker)
	svcMgr.Register(exportWorker)
	svcMgr.Register(alertWorker)
	svcMgr.Register(phaseWorker)
	svcMgr.Register(cameraSource)
	svcMgr.Register(frameWorker)

	if err := svcMgr.Start(ctx, cfg); err != nil {
		log.Error("Failed to start services", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	if err := svcMgr.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Shutdown complete")
}
