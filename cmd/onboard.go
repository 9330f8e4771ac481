package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/trinsiklabs/onelist/internal/config"
)

// onboardCmd walks a first-time user through a minimal config and writes
// it to the config path. Secrets are never prompted for or persisted;
// the wizard finishes with env-var instructions instead.
func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-time setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()

			agentKind := cfg.Agent.Kind
			storeURL := cfg.Store.URL
			mode := cfg.Database.Mode
			syncEnabled := cfg.Sync.Enabled

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Agent kind").
						Description("How this runtime identifies itself to the Store").
						Value(&agentKind),
					huh.NewInput().
						Title("Store URL").
						Description("Base URL of the Store HTTP server").
						Value(&storeURL),
					huh.NewSelect[string]().
						Title("Store backend").
						Options(
							huh.NewOption("standalone (SQLite, single machine)", "standalone"),
							huh.NewOption("managed (Postgres)", "managed"),
						).
						Value(&mode),
					huh.NewConfirm().
						Title("Enable background transcript sync?").
						Value(&syncEnabled),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			cfg.Agent.Kind = agentKind
			cfg.Store.URL = storeURL
			cfg.Database.Mode = mode
			cfg.Sync.Enabled = syncEnabled

			path := resolveConfigPath()
			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Printf("Config written to %s\n\n", path)

			if os.Getenv("ONELIST_STORE_TOKEN") == "" {
				fmt.Println("Set the shared token before connecting:")
				fmt.Println("  export ONELIST_STORE_TOKEN=<token>   # agent side")
				fmt.Println("  export ONELIST_SERVER_TOKEN=<token>  # serve side")
			}
			if mode == "managed" && os.Getenv("ONELIST_POSTGRES_DSN") == "" {
				fmt.Println("Managed mode needs a DSN:")
				fmt.Println("  export ONELIST_POSTGRES_DSN=postgres://...")
				fmt.Println("  onelist migrate up")
			}

			fmt.Print("\nChecking Store... ")
			if err := probeStore(storeURL); err != nil {
				fmt.Printf("not reachable (%s)\n", err)
				fmt.Println("Start it with: onelist serve")
			} else {
				fmt.Println("OK")
			}
			return nil
		},
	}
}

func probeStore(baseURL string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
