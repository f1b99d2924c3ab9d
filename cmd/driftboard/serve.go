// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/driftboard/driftboard/internal/auth"
	authpg "github.com/driftboard/driftboard/internal/auth/postgres"
	"github.com/driftboard/driftboard/internal/config"
	"github.com/driftboard/driftboard/internal/logging"
	"github.com/driftboard/driftboard/internal/mail"
	"github.com/driftboard/driftboard/internal/observability"
	"github.com/driftboard/driftboard/internal/store"
	"github.com/driftboard/driftboard/internal/web"
	"github.com/driftboard/driftboard/internal/xdg"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication server",
		Long: `Start the HTTP authentication server. Pending schema migrations
are applied before the server begins accepting requests.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	// Without --config, fall back to the XDG config file when one exists.
	path := configFile
	if path == "" {
		path = xdg.ConfigFile()
	}
	cfg, err := config.Load(cmd.Flags(), path)
	if err != nil {
		return err
	}

	logging.SetDefault("driftboard", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	logger := slog.Default()

	pool, err := store.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return err
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("closing migrator", "error", err)
	}

	users := authpg.NewUserRepository(pool)
	sessions := auth.NewSessionManager(authpg.NewSessionRepository(pool), cfg.Session.Lifetime)
	verification := auth.NewVerificationService(authpg.NewVerificationCodeRepository(pool), users, sessions)
	hasher := auth.NewScryptHasher()
	resets := auth.NewPasswordResetService(authpg.NewPasswordResetTokenRepository(pool), users, sessions, hasher)

	var mailer auth.Mailer
	if cfg.SMTP.Host == "" {
		logger.Warn("no SMTP host configured, mail is logged instead of sent")
		mailer = mail.NewLogMailer(logger)
	} else {
		mailer = mail.NewSMTPMailer(cfg.SMTP, cfg.Server.BaseURL, logger)
	}

	svc := auth.NewService(auth.ServiceDeps{
		Users:        users,
		Sessions:     sessions,
		Verification: verification,
		Resets:       resets,
		Hasher:       hasher,
		Mailer:       mailer,
		Logger:       logger,
	})

	// Observability server is optional; an empty address disables it.
	var (
		obsServer *observability.Server
		obsErrCh  <-chan error
		metrics   *observability.Metrics
	)
	if cfg.Observability.Addr != "" {
		obsServer = observability.NewServer(cfg.Observability.Addr, func() bool {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
	}
	if obsServer != nil {
		metrics = obsServer.Metrics()
	}

	apiServer := web.NewServer(cfg.Server, svc, metrics, logger)
	apiErrCh := apiServer.Start()

	cmd.Println("Driftboard server started on " + cfg.Server.Addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-apiErrCh:
		if err != nil {
			logger.Error("api server failed", "error", err)
		}
	case err := <-obsErrCh:
		if err != nil {
			logger.Error("observability server failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
