package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	"github.com/noah-isme/sma-admissions-api/pkg/config"
	"github.com/noah-isme/sma-admissions-api/pkg/storage"
)

func newSweepOrphansCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Retry remote deletes of blobs left behind by release or replace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			store, err := objectStore(e.cfg)
			if err != nil {
				return err
			}
			if batch <= 0 {
				batch = e.cfg.Orphans.BatchSize
			}
			sweeper := service.NewOrphanSweeper(repository.NewOrphanRepository(e.db), store, nil, e.logger, service.OrphanSweeperConfig{
				BatchSize:   batch,
				MaxAttempts: e.cfg.Orphans.MaxAttempts,
				Timeout:     e.cfg.Storage.Timeout,
			})
			result, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "maximum orphans to retry (default from ORPHAN_SWEEP_BATCH)")
	return cmd
}

func objectStore(cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverHTTP:
		return storage.NewHTTPObjectStore(cfg.Storage.Endpoint, cfg.Storage.BaseURL, cfg.Storage.Token, cfg.Storage.Timeout)
	case config.StorageDriverLocal:
		return storage.NewLocalStorage(cfg.Storage.Dir, cfg.Storage.BaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
