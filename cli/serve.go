package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrsingh-rishi/voice-agent/config"
	"github.com/mrsingh-rishi/voice-agent/conversation"
	"github.com/mrsingh-rishi/voice-agent/logger"
	"github.com/mrsingh-rishi/voice-agent/metrics"
	"github.com/mrsingh-rishi/voice-agent/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		Console:   true,
		Pretty:    cfg.Log.Pretty,
		Redaction: cfg.Log.Redaction,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	log := l.Zerolog()

	m := metrics.NewMetrics()
	coord, archiveWorker, err := conversation.Build(cfg, m, log)
	if err != nil {
		return fmt.Errorf("failed to build conversation: %w", err)
	}
	coord.Start()
	defer coord.Stop()

	if archiveWorker != nil {
		archiveWorker.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			archiveWorker.Stop(ctx)
		}()
	}

	srv := server.New(coord, m, server.Config{BodyLimit: cfg.Server.BodyLimitMB * 1024 * 1024}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.Server.Addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
