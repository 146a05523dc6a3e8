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

	"go.uber.org/zap"

	"certportal/internal/chain"
	"certportal/internal/config"
	"certportal/internal/db"
	"certportal/internal/gateway"
	"certportal/internal/handlers"
	"certportal/internal/logging"
	"certportal/internal/portal"
	"certportal/internal/router"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "certportal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, closeRPC, err := chain.Dial(ctx, cfg.RPCURL, cfg.ContractAddress)
	if err != nil {
		return fmt.Errorf("connect verification client: %w", err)
	}
	defer closeRPC()
	log.Infow("verification client ready", "contract", verifier.Address().Hex())

	var recorder portal.Recorder
	if cfg.AuditEnabled() {
		gdb, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(gdb); err != nil {
				log.Warnw("closing database", "error", err)
			}
		}()
		recorder = db.NewAuditRepository(gdb)
		log.Info("audit trail enabled")
	} else {
		log.Info("DB_URL not set, audit trail disabled")
	}

	ctrlLog := log.With("component", "portal")
	sessions := portal.NewSessions(cfg.SessionIdleTTL, cfg.SessionMax, func() *portal.Controller {
		return portal.NewController(verifier, portal.WithRecorder(recorder), portal.WithLogger(ctrlLog))
	})
	go sessions.Run(ctx, time.Minute)

	if !cfg.ShareLinksEnabled() {
		log.Info("SHARE_TOKEN_SECRET not set, share links disabled")
	}
	h := handlers.New(handlers.Config{
		Sessions:    sessions,
		Gateway:     gateway.New(cfg.GatewayURL, nil),
		Logger:      log.With("component", "http"),
		BaseURL:     cfg.BaseURL,
		ShareSecret: cfg.ShareSecret,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.RegisterRouter(h, log, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, log)
}

func serve(ctx context.Context, srv *http.Server, log *zap.SugaredLogger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
