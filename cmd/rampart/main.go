// cmd/rampart/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FairForge/rampart/internal/api"
	"github.com/FairForge/rampart/internal/capacity"
	"github.com/FairForge/rampart/internal/config"
	"github.com/FairForge/rampart/internal/loadgen"
	"github.com/FairForge/rampart/internal/metrics"
	"github.com/FairForge/rampart/internal/report"
	"github.com/FairForge/rampart/internal/resource"
)

func main() {
	cfg, err := config.Load(os.Getenv("RAMPART_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "rampart: %v\n", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Server.LogLevel)
	defer func() { _ = logger.Sync() }()

	mode := config.GetEnvOrDefault("RAMPART_MODE", "plan")
	switch mode {
	case "plan":
		os.Exit(runPlan(cfg, logger))

	case "profile":
		// Plan mode driven entirely by a named preset.
		if os.Getenv("RAMPART_PRESET") == "" {
			logger.Fatal("profile mode requires RAMPART_PRESET",
				zap.Strings("presets", config.PresetNames()))
		}
		os.Exit(runPlan(cfg, logger))

	case "serve":
		serve(cfg, logger)

	default:
		logger.Fatal("unknown RAMPART_MODE", zap.String("mode", mode))
	}
}

// runPlan executes the configured plan once and prints the summary.
func runPlan(cfg *config.Config, logger *zap.Logger) int {
	if cfg.Plan.Target.URL == "" {
		logger.Error("no target configured, set RAMPART_TARGET_URL or a config file")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build load runner", zap.Error(err))
		return 1
	}

	sink, err := buildSinks(ctx, cfg.Reports, logger)
	if err != nil {
		logger.Error("failed to build report sinks", zap.Error(err))
		return 1
	}

	engine := capacity.NewEngine(cfg.Plan, runner, buildMonitor(cfg, logger), metrics.NewRecorder(), nil, logger)

	rep, err := engine.Run(ctx)
	if err != nil {
		var phaseErr *capacity.PhaseError
		if errors.As(err, &phaseErr) {
			logger.Error("run aborted",
				zap.String("phase", phaseErr.Phase),
				zap.Error(phaseErr.Err))
		} else {
			logger.Error("run failed", zap.Error(err))
		}
		return 1
	}

	fmt.Println(rep.Summary())

	if sink != nil {
		if err := sink.Store(ctx, rep); err != nil {
			logger.Error("failed to store report", zap.Error(err))
			return 1
		}
	}
	return 0
}

// serve starts the control server. Runs are created through the API and
// merge over the configured plan.
func serve(cfg *config.Config, logger *zap.Logger) {
	ctx := context.Background()

	runner, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build load runner", zap.Error(err))
	}

	sink, err := buildSinks(ctx, cfg.Reports, logger)
	if err != nil {
		logger.Fatal("failed to build report sinks", zap.Error(err))
	}

	monitor := buildMonitor(cfg, logger)
	recorder := metrics.NewRecorder()

	runPlan := api.PlanRunnerFunc(func(runCtx context.Context, plan capacity.Plan) (*capacity.Report, error) {
		engine := capacity.NewEngine(plan, runner, monitor, recorder, nil, logger)
		rep, err := engine.Run(runCtx)
		if err != nil {
			return nil, err
		}
		if sink != nil {
			// The report stays retrievable through the API either way.
			if err := sink.Store(runCtx, rep); err != nil {
				logger.Error("failed to store report", zap.String("id", rep.ID), zap.Error(err))
			}
		}
		return rep, nil
	})

	server := api.NewServer(api.Config{
		Port:        cfg.Server.Port,
		Logger:      logger,
		Runner:      runPlan,
		DefaultPlan: cfg.Plan,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down control server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		os.Exit(0)
	}()

	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════╗\n")
	fmt.Printf("║       Rampart Control Server         ║\n")
	fmt.Printf("╠══════════════════════════════════════╣\n")
	fmt.Printf("║  API: http://localhost:%-13d ║\n", cfg.Server.Port)
	fmt.Printf("╚══════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("control server failed", zap.Error(err))
	}
}

// buildRunner assembles the HTTP load runner with the configured target
// authentication baked into its client.
func buildRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*loadgen.HTTPRunner, error) {
	timeout := time.Duration(cfg.Load.TimeoutSeconds) * time.Second

	client, err := cfg.Auth.Client(ctx, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("target auth: %w", err)
	}

	return loadgen.NewHTTPRunner(loadgen.Options{
		Timeout: timeout,
		MaxRPS:  cfg.Load.MaxRPS,
		Client:  client,
	}, logger), nil
}

func buildMonitor(cfg *config.Config, logger *zap.Logger) capacity.ResourceMonitor {
	if cfg.Monitor.Mode == config.MonitorHTTP {
		return resource.NewHTTPMonitor(cfg.Monitor.HTTP, nil, logger)
	}
	return resource.NewStaticMonitor(cfg.Plan.ResourceDefaults)
}

// buildSinks wires every enabled report sink. Returns nil when none are
// configured; reports then only reach stdout and the API.
func buildSinks(ctx context.Context, cfg config.ReportsConfig, logger *zap.Logger) (report.Sink, error) {
	var sinks []report.Sink

	if cfg.File != nil {
		sink, err := report.NewFileSink(*cfg.File, logger)
		if err != nil {
			return nil, fmt.Errorf("file sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.S3 != nil {
		sink, err := report.NewS3Sink(*cfg.S3, logger)
		if err != nil {
			return nil, fmt.Errorf("s3 sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Postgres != nil {
		sink, err := report.NewPostgresSink(ctx, *cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return report.NewMultiSink(sinks...), nil
	}
}

func buildLogger(level string) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))

	logger, err := zapCfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
