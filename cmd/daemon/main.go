package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/app"
	"github.com/dgnsrekt/roll-pressure/internal/config"
	"github.com/dgnsrekt/roll-pressure/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	daemonCfg := LoadDaemonConfig()

	cfg, err := config.Load(daemonCfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := app.NewLogger("daemon", false, &cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if daemonCfg.StateFile == "" {
		daemonCfg.StateFile = cfg.Paths.StateFile
	}

	logger.Info("daemon configuration loaded",
		zap.Int("scheduleHour", daemonCfg.ScheduleHour),
		zap.Int("scheduleMinute", daemonCfg.ScheduleMinute),
		zap.String("timezone", daemonCfg.Timezone),
		zap.String("configPath", daemonCfg.ConfigPath),
		zap.String("stateFile", daemonCfg.StateFile),
		zap.Bool("runOnStartup", daemonCfg.RunOnStartup),
		zap.Strings("markets", cfg.Markets),
		zap.Int("days", cfg.Ingest.Days),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", zap.Error(err))
		return 1
	}
	defer components.Close()

	if daemonCfg.MetricsAddr != "" {
		metricsServer := serveMetrics(daemonCfg.MetricsAddr, components.Metrics.Handler(), logger)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	scheduler := NewScheduler(daemonCfg.ScheduleHour, daemonCfg.ScheduleMinute, daemonCfg.Timezone)
	tracker := NewRunTracker(daemonCfg.StateFile)

	logger.Info("daemon started",
		zap.String("schedule", fmt.Sprintf("%02d:%02d %s", daemonCfg.ScheduleHour, daemonCfg.ScheduleMinute, daemonCfg.Timezone)),
		zap.String("lastRun", tracker.LastRunDate()),
	)

	if daemonCfg.RunOnStartup && shouldCatchUp(scheduler, tracker) {
		logger.Info("catching up missed run on startup")
		runPipeline(ctx, components.Runner, scheduler, tracker, logger)
	}

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if shouldRun(scheduler, tracker, logger) {
				runPipeline(ctx, components.Runner, scheduler, tracker, logger)
			}

		case <-ctx.Done():
			logger.Info("received shutdown signal, stopping")
			return 0
		}
	}
}

// shouldRun checks if the scheduled run is due this minute.
func shouldRun(scheduler *Scheduler, tracker *RunTracker, logger *zap.Logger) bool {
	today := scheduler.TodayDate()

	if tracker.AlreadyRan(today) {
		return false
	}
	if !scheduler.IsMarketDay(today) {
		logger.Debug("not a market day", zap.String("date", today))
		return false
	}
	if !scheduler.IsScheduledTime() {
		return false
	}

	logger.Info("run conditions met",
		zap.String("date", today),
		zap.String("time", time.Now().In(scheduler.Location()).Format("15:04:05")),
	)
	return true
}

// shouldCatchUp reports whether today's run was missed.
func shouldCatchUp(scheduler *Scheduler, tracker *RunTracker) bool {
	today := scheduler.TodayDate()
	return !tracker.AlreadyRan(today) && scheduler.IsMarketDay(today) && scheduler.PastScheduledTime()
}

// runPipeline executes one run and records the date on success. The runner
// sends the ntfy success and failure notifications itself.
func runPipeline(ctx context.Context, runner *pipeline.Runner, scheduler *Scheduler, tracker *RunTracker, logger *zap.Logger) {
	today := scheduler.TodayDate()
	logger.Info("starting scheduled run", zap.String("date", today))

	result, err := runner.Run(ctx, pipeline.Options{})
	if err != nil {
		logger.Error("run failed", zap.Error(err), zap.String("date", today))
		return
	}

	logger.Info("run succeeded",
		zap.String("date", today),
		zap.String("runID", result.RunID),
		zap.Int("alerts", len(result.Alerts)),
		zap.Duration("duration", result.Duration),
	)

	if err := tracker.SetLastRunDate(today); err != nil {
		logger.Error("failed to update tracker", zap.Error(err))
	}
}

func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}
