package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/trinsiklabs/onelist/internal/bus"
	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/importer"
	"github.com/trinsiklabs/onelist/internal/ingest"
	"github.com/trinsiklabs/onelist/internal/memory"
	"github.com/trinsiklabs/onelist/internal/server"
	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/internal/store/pg"
	"github.com/trinsiklabs/onelist/internal/store/sqlite"
	"github.com/trinsiklabs/onelist/internal/telemetry"
	"github.com/trinsiklabs/onelist/internal/upgrade"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the OneList Store server",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}

	events := bus.New()
	queue := memory.NewExtractionQueue()
	guard := memory.NewGuard(stores.Memories)
	chain := memory.NewChain(stores.Owners, stores.Entries, stores.Chain)
	svc := ingest.New(stores, chain, queue, events)
	imp := importer.New(svc, stores.Entries, events)

	// Drain the extraction queue. The extractor itself is an external
	// collaborator listening on the events feed; here we just clear the
	// debounce marks so streams keep qualifying.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-queue.Jobs():
				slog.Debug("extraction pending", "entry", job.EntryID, "queued_at", job.QueuedAt)
				queue.Done(job.EntryID)
			}
		}
	}()

	srv := server.New(cfg, stores, svc, guard, chain, events, imp)
	return srv.Start(ctx)
}

// openStores picks the backend: Postgres in managed mode (after a schema
// compatibility check), the local SQLite file otherwise.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		status, err := upgrade.CheckSchema(db)
		db.Close()
		if err != nil {
			return nil, fmt.Errorf("check schema: %w", err)
		}
		if serr := status.Err(); serr != nil {
			fmt.Print(status.FormatError())
			return nil, serr
		}
		slog.Info("store backend", "mode", "managed", "schema_version", status.CurrentVersion)
		return pg.NewStores(cfg.Database.PostgresDSN)
	}

	path := config.ExpandHome(cfg.Database.SQLitePath)
	slog.Info("store backend", "mode", "standalone", "path", path)
	return sqlite.NewStores(path)
}
