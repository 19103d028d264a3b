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
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/chatlog/internal/engine"
	"github.com/user/chatlog/internal/history"
	"github.com/user/chatlog/internal/media"
	"github.com/user/chatlog/internal/metrics"
	"github.com/user/chatlog/internal/output"
	"github.com/user/chatlog/internal/render"
	"github.com/user/chatlog/internal/resolver"
	"github.com/user/chatlog/internal/telegram"
	"github.com/user/chatlog/internal/types"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Attach to the event stream and log events until interrupted",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := history.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	adapter, err := telegram.New(cfg.BotToken, log)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	m := metrics.New()

	var stdout io.Writer
	if cfg.LogToStdout {
		stdout = os.Stdout
	}
	router := output.New(output.Options{
		Stdout:        stdout,
		ToFile:        cfg.LogToFile,
		Dir:           cfg.LogDir,
		SeparateFiles: cfg.LogSeparateFiles,
		Logger:        log,
	})
	defer router.Close()

	archiver := media.New(adapter, cfg.MediaDir, 2, log, m)

	eng := engine.New(engine.Deps{
		Store:     store,
		Platform:  adapter,
		Resolver:  resolver.New(adapter, log),
		Renderer:  render.New(render.NewStyles(cfg.LogColors)),
		Sink:      router,
		Archiver:  archiver,
		Filter:    engine.NewFilter(cfg.EnabledChats, cfg.DisabledChats),
		SaveMedia: cfg.SaveMedia,
		Logger:    log,
		Metrics:   m,
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}
		go func() {
			log.Info("metrics server started", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("listening for messages",
		"db_path", cfg.DBPath,
		"log_to_stdout", cfg.LogToStdout,
		"log_to_file", cfg.LogToFile,
		"save_media", cfg.SaveMedia,
	)

	err = adapter.Run(ctx, func(n types.Notification) {
		eng.Process(ctx, n)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event stream: %w", err)
	}

	log.Info("shutting down, draining media downloads")
	archiver.Wait()
	return nil
}
