package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
	"github.com/DoyleJ11/code-battle-backend/internal/config"
	"github.com/DoyleJ11/code-battle-backend/internal/engine"
	"github.com/DoyleJ11/code-battle-backend/internal/httpapi"
	"github.com/DoyleJ11/code-battle-backend/internal/hub"
	"github.com/DoyleJ11/code-battle-backend/internal/judge"
	"github.com/DoyleJ11/code-battle-backend/internal/logging"
	"github.com/DoyleJ11/code-battle-backend/internal/room"
	"github.com/DoyleJ11/code-battle-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	problems, err := loadCatalog(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("load problem catalog", zap.Error(err))
	}

	grader, err := judge.NewClient(judge.Config{
		BaseURL:      cfg.Judge0URL,
		Host:         cfg.Judge0Host,
		APIKey:       cfg.Judge0APIKey,
		LanguageID:   cfg.Judge0LanguageID,
		PollInterval: cfg.Judge0PollInterval,
	}, nil, logger)
	if err != nil {
		logger.Fatal("judge0 client", zap.Error(err))
	}

	rules := engine.DefaultRules()
	rules.DurationSec = cfg.BattleDurationSec

	h := hub.NewHub(ctx, hub.Config{
		Catalog: problems,
		Room: room.Config{
			Rules:        rules,
			TickInterval: cfg.TickInterval,
			GradeTimeout: cfg.GradeTimeout,
			Grader:       grader,
			Logger:       logger,
		},
		Logger: logger,
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:            h,
		Catalog:        problems,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		WS: ws.Config{
			MessageRate:  cfg.WSMessageRate,
			MessageBurst: cfg.WSMessageBurst,
			Logger:       logger,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Int("problems", problems.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		h.Send(hub.ShutdownHub{})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

// loadCatalog uses Postgres when a DSN is configured and the built-in list otherwise.
func loadCatalog(ctx context.Context, dsn string, logger *zap.Logger) (*catalog.Catalog, error) {
	if dsn == "" {
		return catalog.Builtin(), nil
	}

	db, err := catalog.OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	if err := catalog.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := catalog.Seed(ctx, db, catalog.Builtin().All()); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	c, err := catalog.Load(ctx, db)
	if err != nil {
		return nil, err
	}
	logger.Info("problem catalog loaded from database", zap.Int("problems", c.Len()))
	return c, nil
}
