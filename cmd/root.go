package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/trinsiklabs/onelist/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "onelist",
	Short: "OneList — shared memory fabric for coexisting AI agents",
	Long: "OneList keeps every AI agent on a host writing into one shared Store:\n" +
		"chat streams are synced and attributed, context is retrieved and injected\n" +
		"under cooperative budgets, and memories carry provenance and derivation depth.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.onelist/config.json or $ONELIST_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(hookCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("onelist %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("ONELIST_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(config.ExpandHome("~/.onelist"), "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

// setupLogging writes structured logs to stderr: stdout is reserved for
// command output (the hook's injected block, version strings).
func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
