package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicerp/backend/internal/domain/clinic"
	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/clinicerp/backend/internal/infrastructure/auth"
	"github.com/clinicerp/backend/internal/infrastructure/config"
	"github.com/clinicerp/backend/internal/infrastructure/logger"
	"github.com/clinicerp/backend/internal/infrastructure/persistence"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/audit"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/scope"
	"github.com/clinicerp/backend/internal/interfaces/http/handler"
	"github.com/clinicerp/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	registry := scope.NewRegistry()
	registry.MustRegister(&clinic.Patient{})
	registry.MustRegister(&clinic.Invoice{})
	registry.MustRegister(&clinic.StockItem{})

	sink, auditStore, err := buildSinks(cfg, log, db)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenService(&cfg.JWT)
	handlers := router.Handlers{
		Patient: handler.NewPatientHandler(db.DB, registry, sink),
	}
	if auditStore != nil {
		handlers.Audit = handler.NewAuditHandler(db.DB, registry, auditStore)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        router.New(cfg.App.Name, log, tokens, handlers),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// buildSinks assembles the configured audit sinks. The database sink is
// returned separately so the audit trail endpoint can query it.
func buildSinks(cfg *config.Config, log *zap.Logger, db *persistence.Database) (shared.AuditSink, *audit.GormSink, error) {
	var sinks audit.FanoutSink
	var store *audit.GormSink
	for _, name := range cfg.Audit.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, audit.NewZapSink(log))
		case "database":
			store = audit.NewGormSink(db.DB)
			sinks = append(sinks, store)
		case "redis":
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			sinks = append(sinks, audit.NewRedisSink(client, cfg.Audit.Stream))
		default:
			return nil, nil, fmt.Errorf("unknown audit sink %q", name)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], store, nil
	}
	return sinks, store, nil
}
