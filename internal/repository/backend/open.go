// Package backend picks and opens the configured document store.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"geoindex/internal/config"
	"geoindex/internal/repository"
	"geoindex/internal/repository/dynamostore"
	"geoindex/internal/repository/memory"
	"geoindex/internal/repository/sqlstore"
)

// Open returns the store named by cfg.Store.Type, indexing cfg.Geo.IndexField.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.DocumentStore, error) {
	indexField := cfg.Geo.IndexField

	switch cfg.Store.Type {
	case config.StoreMemory, "":
		return memory.NewDocumentStore(indexField), nil

	case config.StoreSQLite, config.StorePostgres:
		driver := sqlstore.DriverSQLite
		if cfg.Store.Type == config.StorePostgres {
			driver = sqlstore.DriverPostgres
		}
		store, err := sqlstore.Open(ctx, driver, cfg.Store.DSN, indexField, logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.StoreDynamoDB:
		client, err := dynamostore.NewClient(ctx, cfg.Store.Region, cfg.Store.Endpoint)
		if err != nil {
			return nil, err
		}
		store, err := dynamostore.New(client, dynamostore.Options{
			Table:      cfg.Store.Table,
			IndexName:  cfg.Store.IndexName,
			IndexField: indexField,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
}
