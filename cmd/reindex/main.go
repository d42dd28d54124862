// Command reindex backfills the index key of every document in one or more
// collections. Run it after changing the index precision or importing
// documents behind the API's back. A lock file keeps two backfills from
// racing on the same store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"geoindex/internal/config"
	"geoindex/internal/logging"
	"geoindex/internal/repository/backend"
	"geoindex/internal/services"
)

func main() {
	configPath := flag.String("config", os.Getenv("GEOINDEX_CONFIG"), "path to the YAML config file")
	lockPath := flag.String("lock", filepath.Join(os.TempDir(), "geoindex-reindex.lock"), "lock file guarding concurrent runs")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [collection ...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	collections := flag.Args()
	if len(collections) == 0 {
		collections = []string{cfg.Search.DefaultCollection}
	}

	if err := run(cfg, logger, *lockPath, collections); err != nil {
		logger.Error("reindex failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, lockPath string, collections []string) error {
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("another reindex holds %s", lockPath)
	}
	defer lock.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	maintainer := services.NewIndexMaintainer(store, cfg, logger)
	enc := json.NewEncoder(os.Stdout)

	var failed int
	for _, coll := range collections {
		summary, err := maintainer.ReindexCollection(ctx, coll)
		if encErr := enc.Encode(summary); encErr != nil {
			return encErr
		}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d collections had failures", failed, len(collections))
	}
	return nil
}
