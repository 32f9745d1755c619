package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wrale/gotowebinar-bridge/internal/scheduler"
)

// Version is set by the build process
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gotowebinar-bridge",
		Short:        "Register form entries as GoToWebinar attendees",
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), refreshCmd(), authorizeURLCmd(), versionCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the scheduled token refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored access token once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			token, err := a.manager.RefreshAccessToken(cmd.Context())
			if err != nil {
				return fmt.Errorf("refreshing access token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "access token refreshed, expires %s\n", token.Expires.UTC().Format("2006-01-02T15:04:05Z"))
			return nil
		},
	}
}

func authorizeURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize-url",
		Short: "Print the URL that authorizes the configured client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if a.manager.State().ClientID == "" {
				return errors.New("no client connected; submit the client ID and secret on /settings first")
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.manager.AuthorizeURL())
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gotowebinar-bridge %s\n", Version)
		},
	}
}

func serve(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	h, err := a.handlers()
	if err != nil {
		return fmt.Errorf("creating handlers: %w", err)
	}
	srv := newServer(cfg, h, a.logger.Named("http"))

	sched, err := scheduler.New(a.manager, cfg.RefreshSchedule,
		scheduler.WithLogger(a.logger.Named("scheduler")),
		scheduler.WithObserver(a.metrics),
		scheduler.WithTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return err
	}
	sched.Start()

	httpServer := a.httpServer(srv.router)

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.Int("port", cfg.Port), zap.String("version", Version))
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("starting server: %w", err)
		}

	case sig := <-shutdown:
		a.logger.Info("starting shutdown", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("error shutting down server", zap.Error(err))
		if err := httpServer.Close(); err != nil {
			a.logger.Error("error closing server", zap.Error(err))
		}
	}

	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Error("error stopping scheduler", zap.Error(err))
	}

	return serveErr
}
