package cmd

import (
	"context"
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trinsiklabs/onelist/internal/client"
	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/coord"
	"github.com/trinsiklabs/onelist/internal/runtime"
	"github.com/trinsiklabs/onelist/internal/sessions"
	"github.com/trinsiklabs/onelist/internal/syncer"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent-side runtime (transcript sync + health)",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cs, err := openCoord(cfg)
			if err != nil {
				return err
			}
			cl, err := newStoreClient(cfg, cs)
			if err != nil {
				return err
			}

			var sync *syncer.Syncer
			if cfg.Sync.Enabled {
				pointer := newPointerReader(cfg)
				sync = syncer.New(cfg, pointer, cs, cl, cfg.OneListHomePath())
			}

			err = runtime.New(cfg, cs, sync).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func openCoord(cfg *config.Config) (*coord.Store, error) {
	opts := coord.DefaultOptions()
	if v := cfg.Injection.MaxPerSession; v > 0 {
		opts.MaxInjectionsPerSession = v
	}
	if v := cfg.Injection.MinIntervalSec; v > 0 {
		opts.MinInjectionInterval = time.Duration(v) * time.Second
	}
	opts.ResetOnRecreate = cfg.Injection.ResetOnRecreate
	return coord.New(filepath.Join(cfg.OneListHomePath(), "coordination"), opts)
}

func newStoreClient(cfg *config.Config, cs *coord.Store) (*client.Client, error) {
	id, err := client.LoadIdentity(cfg, Version)
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Store.URL, cfg.Store.Token, id, cs), nil
}

func newPointerReader(cfg *config.Config) *sessions.PointerReader {
	ttl := time.Duration(cfg.Sync.PointerTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return sessions.NewPointerReader(cfg.SessionsDir(), cfg.Agent.Kind, ttl)
}
