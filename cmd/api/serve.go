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

	"messenger-be/internal/auth"
	"messenger-be/internal/config"
	"messenger-be/internal/database"
	"messenger-be/internal/http/router"
	"messenger-be/internal/notify"
	"messenger-be/internal/service"
	"messenger-be/internal/store"
	"messenger-be/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the realtime socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logs.GetLoggerFromString(cfg.LogLevel)

			db, err := database.Connect(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("failed connect db: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			return database.Migrate(db, log)
		},
	}
}

// runServe wires every component and blocks until a signal or a server
// failure. Deferred cleanup runs in both cases.
func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed connect db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing database...")
		_ = sqlDB.Close()
	}()

	if err := database.Migrate(db, log); err != nil {
		return err
	}

	st := store.New(db)
	hub := ws.NewHub(log, cfg.SocketBufferSize)
	authSvc := auth.NewService(st, auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL))
	chat := service.NewChat(log, st, notify.NewNotifier(log, hub))

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: router.New(router.Deps{
			Log:                  log,
			Store:                st,
			Auth:                 authSvc,
			Chat:                 chat,
			Hub:                  hub,
			WSInsecureSkipVerify: cfg.WSInsecureSkipVerify,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("Listening", "address", srv.Addr, "driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}
