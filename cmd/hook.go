package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trinsiklabs/onelist/internal/govern"
	"github.com/trinsiklabs/onelist/internal/retrieve"
)

// hookCmd is what the host runtime invokes at each agent-turn start: it
// prints the context block to stdout, or nothing. It must never fail the
// turn, so every error path exits zero with empty output.
func hookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook",
		Short: "Injection hook: emit retrieved context for the current turn",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg, err := loadConfig()
			if err != nil {
				return
			}

			cs, err := openCoord(cfg)
			if err != nil {
				return
			}
			cl, err := newStoreClient(cfg, cs)
			if err != nil {
				return
			}

			pointer := newPointerReader(cfg)
			retriever := retrieve.NewRetriever(cl, cfg.Retrieval)
			recoverer := retrieve.NewRecoverer(cfg.SessionsDir(), cfg.Fallback)

			gov := govern.New(pointer, cs, retriever, recoverer, govern.Options{
				Budget:          time.Duration(cfg.Injection.BudgetSec) * time.Second,
				MaxContentChars: cfg.Injection.MaxContentChars,
				FallbackEnabled: cfg.Injection.FallbackEnabled,
			})

			if block := gov.Decide(context.Background()); block != "" {
				fmt.Print(block)
			}
		},
	}
}
