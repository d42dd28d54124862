package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"geoindex/internal/api"
	"geoindex/internal/api/handlers"
	"geoindex/internal/api/middleware"
	"geoindex/internal/config"
	"geoindex/internal/logging"
	"geoindex/internal/repository/backend"
	"geoindex/internal/services"
)

func main() {
	configPath := flag.String("config", os.Getenv("GEOINDEX_CONFIG"), "path to the YAML config file")
	issueToken := flag.String("issue-token", "", "print a bearer token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		token, err := middleware.IssueToken(cfg.Auth.Secret, *issueToken, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the document store
	store, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Initialize services
	searchService, err := services.NewSearchService(store, cfg, logger)
	if err != nil {
		return err
	}
	maintainer := services.NewIndexMaintainer(store, cfg, logger)

	// Initialize handlers and router
	router := api.NewRouter(
		handlers.NewSearchHandler(searchService),
		handlers.NewDocumentHandler(store, maintainer, logger),
		cfg.Auth,
		logger,
	)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Setup(engine)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting geoindex server",
			"addr", cfg.Server.Port, "store", cfg.Store.Type,
			"index_precision", cfg.Geo.IndexPrecision, "auth_disabled", cfg.Auth.Secret == "" && cfg.Auth.Disabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
