package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trinsiklabs/onelist/pkg/protocol"
)

func importCmd() *cobra.Command {
	var (
		root      string
		agentKind string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Backfill the Store from the host's session archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if root == "" {
				root = cfg.OpenClawHomePath()
			}

			cs, err := openCoord(cfg)
			if err != nil {
				return err
			}
			cl, err := newStoreClient(cfg, cs)
			if err != nil {
				return err
			}

			req := &protocol.ImportRequest{
				Root:   root,
				Filter: protocol.ImportFilter{AgentKind: agentKind, DryRun: dryRun},
			}

			if dryRun {
				files, err := cl.ImportPreview(context.Background(), req)
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Printf("%s  %s  %d messages\n", f.AgentKind, f.SessionID, f.MessageCount)
				}
				fmt.Printf("%d files would be imported\n", len(files))
				return nil
			}

			resp, err := cl.ImportRun(context.Background(), req)
			if err != nil {
				return err
			}
			for _, r := range resp.Results {
				switch {
				case r.Error != "":
					fmt.Printf("FAIL %s: %s\n", r.Path, r.Error)
				case r.AlreadyExisted:
					fmt.Printf("skip %s (already imported)\n", r.Path)
				default:
					fmt.Printf("ok   %s: %d messages\n", r.Path, r.Imported)
				}
			}
			fmt.Printf("imported %d messages, %d files failed\n", resp.ImportedCount, resp.FailedCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "host archive root (default: the OpenClaw home)")
	cmd.Flags().StringVar(&agentKind, "agent", "", "only import sessions of this agent kind")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list importable files without ingesting")
	return cmd
}
