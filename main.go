package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"tvbridge/adb"
	"tvbridge/api"
	"tvbridge/config"
	"tvbridge/service"
)

const version = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:          "tvbridge",
		Short:        "Backend for managing Android TV devices over adb",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.PersistentFlags().String("listen", "", "listen address (host:port)")
	root.PersistentFlags().String("adb-dir", "", "directory holding the adb binary, overrides discovery")
	viper.BindPFlag("listen", root.PersistentFlags().Lookup("listen"))
	viper.BindPFlag("adb.dir", root.PersistentFlags().Lookup("adb-dir"))

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the tvbridge server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the tvbridge version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println("tvbridge", version)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setupLogging sends slog output to stdout and a timestamped file
// under the log directory. Returns the file handle for closing.
func setupLogging(logDir string) (*os.File, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, timestamp+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logFile), &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(handler))
	slog.Info("logging to file", "path", logPath)
	return logFile, nil
}

func serve(ctx context.Context) error {
	cfg := config.Load()

	logFile, err := setupLogging(cfg.LogDir)
	if err != nil {
		slog.Warn("file logging unavailable, using stdout only", "error", err)
	} else {
		defer logFile.Close()
	}

	slog.Info("starting tvbridge", "version", version, "listen", cfg.Listen)

	resolver := adb.NewResolver(cfg.ADBDir)
	defer resolver.Cleanup()

	executor := adb.NewExecutor(resolver)
	client := adb.NewClient(executor)
	if cfg.CommandTimeout > 0 {
		client.Timeout = cfg.CommandTimeout
	}
	if cfg.ConnectTimeout > 0 {
		client.ConnectTimeout = cfg.ConnectTimeout
	}

	// Probe the bridge up front so a missing binary is reported at
	// startup instead of on the first request. Not fatal: the binary
	// may appear later (e.g. platform tools installed while running).
	if v, err := client.Version(ctx); err != nil {
		slog.Warn("adb unavailable at startup", "error", err)
	} else {
		slog.Info("adb ready", "version", firstLine(v))
	}

	store, err := service.OpenHistoryStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	registry := service.NewSessionRegistry()
	deviceService := service.NewDeviceService(client, registry, store)

	wsHub := api.NewWebSocketHub()
	go wsHub.Run()
	registry.AddListener(wsHub)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, deviceService, registry, wsHub)

	srv := &http.Server{Addr: cfg.Listen, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		registry.Clear()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
