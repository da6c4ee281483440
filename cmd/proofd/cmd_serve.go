package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"proofd/internal/analyze"
	"proofd/internal/autocorrect"
	"proofd/internal/bridge"
	"proofd/internal/config"
	"proofd/internal/controller"
	"proofd/internal/history"
	"proofd/internal/logging"
	"proofd/internal/settings"
	"proofd/internal/span"
	"proofd/internal/surface"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		Long: `Run the daemon: listen for host connections on the bridge address,
analyze attached surfaces through the configured engine, and persist
applied corrections.

A default configuration file is created on first run. Most settings are
read at startup; the config file is watched and a changed file is
revalidated and applied where possible without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, !noWatch)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path (default: user config dir)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable config file watching")
	return cmd
}

func runServe(configPath string, watch bool) error {
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	cfg, created, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	if created {
		logger.Info("created default config", "path", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer := analyze.NewRemoteAnalyzer(cfg.Analyzer.Endpoint, cfg.Analyzer.Timeout())
	gateway := analyze.NewGateway(analyzer, analyze.ParseMode(cfg.Analyzer.Mode), logger.WithComponent("analyze"))
	gateway.SetMaxTextLen(cfg.Processing.MaxTextLen)

	store := settings.NewStore(settings.Flags{
		DebugBorder:   cfg.Flags.DebugBorder,
		AutoCorrect:   cfg.Flags.AutoCorrect,
		DebugMessages: cfg.Flags.DebugMessages,
	})
	store.Subscribe(func(f settings.Flags) {
		logger.SetDebug(f.DebugMessages)
	})

	var hooks controller.Hooks
	if cfg.History.Enabled {
		hist, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer hist.Close()

		hlog := logger.WithComponent("history")
		hooks = controller.Hooks{
			CorrectionApplied: func(rec autocorrect.CorrectionRecord) {
				if _, err := hist.RecordCorrection(rec); err != nil {
					hlog.Warn("record correction failed", "error", err)
				}
			},
			CorrectionReverted: func(rec autocorrect.CorrectionRecord) {
				if err := hist.MarkReverted(rec.SurfaceID, time.Now()); err != nil {
					hlog.Warn("mark reverted failed", "error", err)
				}
			},
		}
		gateway.OnRender(func(_ surface.Surface, _ string, _ []span.ErrorRecord) {
			if err := hist.RecordPass(); err != nil {
				hlog.Warn("record pass failed", "error", err)
			}
		})

		if cfg.History.RetentionDays > 0 {
			olderThan := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
			if n, err := hist.Prune(olderThan); err != nil {
				hlog.Warn("history prune failed", "error", err)
			} else if n > 0 {
				hlog.Info("pruned old corrections", "rows", n)
			}
		}
	}

	manager := controller.NewManager(gateway, store, cfg.Processing.Debounce(), hooks, logger.WithComponent("controller"))
	defer manager.Shutdown()

	server := bridge.NewServer(cfg.Bridge, manager, gateway, store, logger.WithComponent("bridge"))
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if watch {
		if err := watchConfig(configPath, cfg, gateway, logger); err != nil {
			logger.Warn("config watching unavailable", "error", err)
		}
	}

	logger.Info("proofd running",
		"bridge", server.Addr(),
		"analyzer", cfg.Analyzer.Endpoint,
		"mode", cfg.Analyzer.Mode)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// buildLogger maps the file configuration onto a logger.
func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Format = format
	logCfg.Output = cfg.Logging.Output
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	if cfg.Logging.MaxSizeMB > 0 {
		logCfg.MaxSize = cfg.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxAgeDays > 0 {
		logCfg.MaxAge = cfg.Logging.MaxAgeDays
	}
	if cfg.Logging.MaxBackups > 0 {
		logCfg.MaxBackups = cfg.Logging.MaxBackups
	}
	logCfg.Compress = cfg.Logging.Compress
	return logging.New(logCfg)
}

// watchConfig hot-reloads the tunables that can change without a restart.
// Listener addresses and the history path need a restart; the reload logs
// what it could not apply.
func watchConfig(path string, current *config.Config, gateway *analyze.Gateway, logger *logging.Logger) error {
	loader := config.NewLoader(path)
	if _, err := loader.Load(); err != nil {
		return err
	}

	loader.OnChange(func(next *config.Config) {
		gateway.SetMaxTextLen(next.Processing.MaxTextLen)
		if next.Bridge.Listen != current.Bridge.Listen {
			logger.Warn("bridge.listen changed; restart required to take effect")
		}
		if next.History.Path != current.History.Path {
			logger.Warn("history.path changed; restart required to take effect")
		}
		logger.Info("configuration reloaded", "path", path)
	})

	go func() {
		for err := range loader.Errors() {
			logger.Warn("config reload rejected", "error", err)
		}
	}()

	return loader.Watch()
}
