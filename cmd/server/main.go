package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"formforge/internal/app"
	"formforge/internal/config"
	"formforge/internal/server"
	"formforge/internal/util"
	"formforge/pkg/store"
)

const serviceName = "formforge"

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)

	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		logger.Error("parse config", "err", err)
		os.Exit(1)
	}
	idleTime, err := config.ParsePoolDuration("dbConnMaxIdleTime", cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Error("parse config", "err", err)
		os.Exit(1)
	}
	lifetime, err := config.ParsePoolDuration("dbConnMaxLifetime", cfg.DBConnMaxLifetime)
	if err != nil {
		logger.Error("parse config", "err", err)
		os.Exit(1)
	}

	application, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Pool: store.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxIdleTime: idleTime,
			ConnMaxLifetime: lifetime,
		},
		JWTSecret:     cfg.JWTSecret,
		SessionTTL:    cfg.SessionTTL(),
		JWTIssuer:     cfg.JWTIssuer,
		JWTAudience:   cfg.JWTAudience,
		JWTLeeway:     leeway,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("init application", "err", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{App: application})

	var handler http.Handler = srv.Router()
	handler = util.WithSecurityHeaders(handler)
	handler = util.WithCORS(cfg.AllowedOrigins(), handler)
	handler = util.WithRequestLog(serviceName, handler)
	handler = util.WithRequestID(handler)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "service", serviceName, "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "err", err)
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "err", err)
			os.Exit(1)
		}
	}
}
