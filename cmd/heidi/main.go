// =============================================================================
// Heidi Bridge 主入口
// =============================================================================
// EMR → Heidi 自动化流水线的命令行入口
//
// 使用方法:
//
//	heidi run                          # 运行流水线
//	heidi run --config heidi.yaml      # 指定配置文件
//	heidi calibrate                    # 校验锚点表与凭证
//	heidi runs                         # 查看最近的运行记录
//	heidi version                      # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/zkkken/heidi/anchor"
	"github.com/zkkken/heidi/config"
	"github.com/zkkken/heidi/extract"
	"github.com/zkkken/heidi/inject"
	"github.com/zkkken/heidi/internal/metrics"
	"github.com/zkkken/heidi/internal/store"
	"github.com/zkkken/heidi/locator"
	"github.com/zkkken/heidi/pipeline"
	"github.com/zkkken/heidi/pointer"
	"github.com/zkkken/heidi/providers/claude"
	"github.com/zkkken/heidi/reconcile"
	"github.com/zkkken/heidi/record"
	"github.com/zkkken/heidi/screen"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runPipeline(os.Args[2:])
	case "calibrate":
		runCalibrate(os.Args[2:])
	case "runs":
		runShowRuns(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ run 命令
// =============================================================================

func runPipeline(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "heidi.yaml", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting Heidi Bridge",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	steps, err := pipeline.StepsFromConfig(cfg.Pipeline.Steps)
	if err != nil {
		logger.Fatal("Invalid pipeline steps", zap.Error(err))
	}
	if len(steps) == 0 {
		logger.Fatal("No pipeline steps configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, collector, cleanup := buildOrchestrator(ctx, cfg, logger)
	defer cleanup()

	g, gctx := errgroup.WithContext(ctx)

	// 流水线运行期间暴露指标
	if cfg.Metrics.Enabled && collector != nil {
		g.Go(func() error {
			return collector.Serve(gctx, cfg.Metrics.Addr)
		})
	}

	var report *pipeline.Report
	g.Go(func() error {
		var runErr error
		report, runErr = orch.Run(gctx, steps)
		stop() // 流水线结束后取消上下文，让指标服务退出
		return runErr
	})

	runErr := g.Wait()
	printReport(report)
	if runErr != nil && report != nil && report.State == pipeline.StateAborted {
		os.Exit(1)
	}
}

// buildOrchestrator 组装全部组件
func buildOrchestrator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pipeline.Orchestrator, *metrics.Collector, func()) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// 视觉 Provider
	provider, err := claude.New(claude.Config{
		APIKey:    cfg.Locator.APIKey,
		Model:     cfg.Locator.Model,
		BaseURL:   cfg.Locator.BaseURL,
		MaxTokens: cfg.Locator.MaxTokens,
		Timeout:   cfg.Locator.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create vision provider", zap.Error(err))
	}

	loc := locator.New(provider, locator.Options{
		Timeout:   cfg.Locator.Timeout,
		RateLimit: cfg.Locator.RateLimit,
	}, logger)

	// 锚点表
	anchors, err := anchor.Load(cfg.Anchors.Path, logger)
	if err != nil {
		logger.Warn("Anchor table not available, vision estimates only", zap.Error(err))
		anchors = anchor.Empty()
	}

	// 屏幕与鼠标
	capturer := screen.NewDesktopCapturer(logger, screen.Size{
		Width:  cfg.Display.Width,
		Height: cfg.Display.Height,
	})
	engine := pointer.NewEngine(pointer.NewRobotDevice(), pointer.Config{
		Dwell:        cfg.Click.Dwell,
		JitterPx:     cfg.Click.JitterPx,
		MoveDuration: cfg.Click.MoveDuration,
		ConfirmTap:   cfg.Click.ConfirmTap,
	}, logger)

	// 网页注入
	var injector pipeline.Injector
	session, err := inject.NewChromeSession(ctx, cfg.Inject.RemoteURL, cfg.Inject.DocumentURL, logger)
	if err != nil {
		logger.Warn("Browser not available, inject steps will fail", zap.Error(err))
	} else {
		cleanups = append(cleanups, session.Close)
		injector = inject.NewBridge(session, inject.NewReactWriter(), inject.Config{
			ConfirmPoll:    cfg.Inject.ConfirmPoll,
			ConfirmTimeout: cfg.Inject.ConfirmTimeout,
		}, logger)
	}

	// 运行台账
	ledger, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Warn("Run ledger not available", zap.Error(err))
		ledger = nil
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	// 记录系统 API（send 步骤使用）
	var sender pipeline.Sender
	if cfg.Record.APIKey != "" {
		client, err := record.NewClient(record.Config{
			BaseURL:           cfg.Record.BaseURL,
			APIKey:            cfg.Record.APIKey,
			AuthEmail:         cfg.Record.AuthEmail,
			AuthInternalID:    cfg.Record.AuthInternalID,
			Timeout:           cfg.Record.Timeout,
			RetryCount:        cfg.Record.RetryCount,
			TokenExpiryMargin: cfg.Record.TokenExpiryMargin,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create record client", zap.Error(err))
		}
		if collector != nil {
			client.SetMetrics(collector)
		}
		sender = client
	}

	orch, err := pipeline.New(pipeline.Options{
		Capturer:  capturer,
		Anchors:   anchors,
		Locator:   loc,
		Clicker:   engine,
		Injector:  injector,
		Sender:    sender,
		Extractor: extract.NewVisionExtractor(provider, logger),
		Payload:   pipeline.DefaultPayload,
		Thresholds: reconcile.Thresholds{
			DeviationPx: cfg.Reconcile.DeviationThresholdPx,
			SafePx:      cfg.Reconcile.SafeThresholdPx,
		},
		ScaleTolerance: cfg.Display.ScaleTolerance,
		Store:          ledger,
		Metrics:        collector,
		Logger:         logger,
	})
	if err != nil {
		cleanup()
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}

	return orch, collector, cleanup
}

func printReport(report *pipeline.Report) {
	if report == nil {
		return
	}
	fmt.Printf("\nRun %s: %s\n", report.RunID, report.State)
	if report.SessionID != "" {
		fmt.Printf("Session: %s\n", report.SessionID)
	}
	for _, s := range report.Steps {
		fmt.Printf("  [%s] %-20s %-9s attempts=%d", s.Action, s.StepID, s.Status, s.Attempts)
		if s.Trust != "" {
			fmt.Printf(" trust=%s deviation=%.1fpx", s.Trust, s.DeviationPx)
		}
		fmt.Println()
		for _, f := range s.FailedFields {
			fmt.Printf("      field %s: %s\n", f.Field, f.Reason)
		}
		if s.Err != "" {
			fmt.Printf("      error: %s\n", s.Err)
		}
	}
}

// =============================================================================
// 🎯 calibrate 命令
// =============================================================================

// runCalibrate 校验锚点表对当前显示器有效，并验证记录 API 凭证
func runCalibrate(args []string) {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	configPath := fs.String("config", "heidi.yaml", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	capturer := screen.NewDesktopCapturer(logger, screen.Size{
		Width:  cfg.Display.Width,
		Height: cfg.Display.Height,
	})
	display, err := capturer.DisplaySize()
	if err != nil {
		logger.Fatal("Cannot determine display size", zap.Error(err))
	}
	fmt.Printf("Display: %dx%d logical\n", display.Width, display.Height)

	_, captured, err := capturer.Capture(context.Background())
	if err != nil {
		logger.Fatal("Screen capture failed", zap.Error(err))
	}
	scale, err := screen.ResolveScale(captured, display, cfg.Display.ScaleTolerance)
	if err != nil {
		fmt.Printf("Scale: UNSUPPORTED (%v)\n", err)
	} else {
		fmt.Printf("Scale: %.0fx\n", scale)
	}

	anchors, err := anchor.Load(cfg.Anchors.Path, logger)
	if err != nil {
		fmt.Printf("Anchors: not loaded (%v)\n", err)
	} else {
		fmt.Printf("Anchors: %d loaded from %s\n", anchors.Len(), cfg.Anchors.Path)
	}

	if cfg.Record.APIKey != "" {
		client, err := record.NewClient(record.Config{
			BaseURL:           cfg.Record.BaseURL,
			APIKey:            cfg.Record.APIKey,
			AuthEmail:         cfg.Record.AuthEmail,
			AuthInternalID:    cfg.Record.AuthInternalID,
			Timeout:           cfg.Record.Timeout,
			RetryCount:        cfg.Record.RetryCount,
			TokenExpiryMargin: cfg.Record.TokenExpiryMargin,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create record client", zap.Error(err))
		}
		if err := client.EnsureToken(context.Background()); err != nil {
			fmt.Printf("Record API: authentication FAILED (%v)\n", err)
			os.Exit(1)
		}
		fmt.Println("Record API: authenticated")
	}
}

// =============================================================================
// 📜 runs 命令
// =============================================================================

func runShowRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	configPath := fs.String("config", "heidi.yaml", "Path to config file")
	limit := fs.Int("n", 10, "Number of runs to show")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ledger, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Run ledger not available", zap.Error(err))
	}

	runs, err := ledger.RecentRuns(*limit)
	if err != nil {
		logger.Fatal("Failed to read runs", zap.Error(err))
	}
	for _, r := range runs {
		fmt.Printf("%s  %-10s  furthest=%s  started=%s\n",
			r.ID, r.State, r.FurthestStep, r.StartedAt.Format("2006-01-02 15:04:05"))
		if r.AbortReason != "" {
			fmt.Printf("    abort: %s\n", r.AbortReason)
		}
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("Heidi Bridge %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`Heidi Bridge - EMR to Heidi automation pipeline

Usage:
  heidi <command> [options]

Commands:
  run        Run the configured pipeline
  calibrate  Verify display scale, anchor table and API credentials
  runs       Show recent pipeline runs
  version    Show version information
  help       Show this help message

Options:
  --config <path>   Path to configuration file (YAML), default heidi.yaml

Examples:
  heidi run
  heidi run --config /etc/heidi/heidi.yaml
  heidi calibrate
  heidi runs -n 20
  heidi version`)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

func loadConfig(path string) *config.Config {
	cfg, err := config.NewLoader().
		WithConfigPath(path).
		WithValidator(func(c *config.Config) error { return c.Validate() }).
		Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
