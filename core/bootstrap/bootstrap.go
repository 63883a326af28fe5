// Package bootstrap wires configuration, logging, stores, clients, the
// conversation engine, and the HTTP server into a runnable service.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	coreconfig "github.com/zimyouth/regbot/core/config"
	"github.com/zimyouth/regbot/core/flow"
	"github.com/zimyouth/regbot/core/logger"
	"github.com/zimyouth/regbot/core/server"
	"github.com/zimyouth/regbot/core/session"
	"github.com/zimyouth/regbot/core/ticket"
	"github.com/zimyouth/regbot/core/whatsapp"
)

// Run initializes the service from configuration and serves HTTP until
// ctx is done.
func Run(ctx context.Context, cfg *coreconfig.Config) error {
	if cfg == nil {
		return fmt.Errorf("bootstrap: nil config provided")
	}
	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	sessions := session.NewStore(time.Duration(cfg.Flow.SessionTTLSeconds) * time.Second)
	pending := session.NewPendingStore(time.Duration(cfg.Flow.PendingTTLSeconds) * time.Second)

	wa := whatsapp.NewClient(cfg.WhatsApp)
	collaborator := ticket.NewCollaboratorClient(cfg.Collaborator)

	var finder ticket.AssetFinder
	if cfg.Drive.FolderID != "" {
		driveFinder, err := ticket.NewDriveFinder(ctx, cfg.Drive.FolderID, cfg.Drive.CredentialsFile)
		if err != nil {
			// The poll path degrades to its exhaustion notice without a
			// finder; push delivery still works, so this is not fatal.
			logger.Warn(ctx, "app", "drive.init.fail", slog.String("err", err.Error()))
		} else {
			finder = driveFinder
		}
	} else {
		logger.Warn(ctx, "app", "drive.not_configured")
	}

	reconciler := ticket.NewReconciler(ctx, pending, sessions, wa, finder, ticket.Options{
		InitialDelay: time.Duration(cfg.Flow.PollInitialDelaySeconds) * time.Second,
		Interval:     time.Duration(cfg.Flow.PollIntervalSeconds) * time.Second,
		MaxAttempts:  cfg.Flow.PollMaxAttempts,
	})
	dispatcher := ticket.NewDispatcher(collaborator, sessions, pending, reconciler, wa)
	engine := flow.NewEngine(sessions, wa, dispatcher)

	go pending.RunJanitor(ctx, time.Minute, reconciler.ExpirePending)

	srv := server.New(server.Options{
		VerifyToken: cfg.WhatsApp.VerifyToken,
		Engine:      engine,
		Reconciler:  reconciler,
		Sessions:    sessions,
		Pending:     pending,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Listen, cfg.Server.Port)
	return srv.Run(ctx, addr)
}
