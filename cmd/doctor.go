package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/upgrade"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("onelist doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND — defaults apply)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Agent side
	fmt.Println()
	fmt.Println("  Agent:")
	fmt.Printf("    %-16s %s\n", "Kind:", cfg.Agent.Kind)
	checkDir("OpenClaw home:", cfg.OpenClawHomePath())
	checkDir("Sessions dir:", cfg.SessionsDir())
	checkFile("Pointer file:", filepath.Join(cfg.SessionsDir(), "sessions.json"))
	checkWritable("Coordination:", filepath.Join(cfg.OneListHomePath(), "coordination"))

	// Store side
	fmt.Println()
	fmt.Println("  Store:")
	fmt.Printf("    %-16s %s", "URL:", cfg.Store.URL)
	if err := probeStore(cfg.Store.URL); err != nil {
		fmt.Printf(" (UNREACHABLE: %s)\n", err)
	} else {
		fmt.Println(" (OK)")
	}
	if cfg.Store.Token == "" {
		fmt.Printf("    %-16s NOT SET (export ONELIST_STORE_TOKEN)\n", "Token:")
	} else {
		fmt.Printf("    %-16s set\n", "Token:")
	}

	// Database
	fmt.Println()
	fmt.Println("  Database:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-16s managed\n", "Mode:")
		checkManagedSchema(cfg.Database.PostgresDSN)
	} else {
		fmt.Printf("    %-16s standalone\n", "Mode:")
		checkFile("SQLite path:", config.ExpandHome(cfg.Database.SQLitePath))
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkManagedSchema(dsn string) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-16s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		fmt.Printf("    %-16s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}

	s, err := upgrade.CheckSchema(db)
	if err != nil {
		fmt.Printf("    %-16s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	switch {
	case s.Dirty:
		fmt.Printf("    %-16s v%d (DIRTY — run: onelist migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		fmt.Printf("    %-16s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-16s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	default:
		fmt.Printf("    %-16s v%d (run: onelist migrate up)\n", "Schema:", s.CurrentVersion)
	}

	pending, hookErr := upgrade.PendingHooks(context.Background(), db)
	if hookErr == nil && len(pending) > 0 {
		fmt.Printf("    %-16s %d pending\n", "Data hooks:", len(pending))
	} else if hookErr == nil {
		fmt.Printf("    %-16s all applied\n", "Data hooks:")
	}
}

func checkDir(label, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		fmt.Printf("    %-16s %s (NOT FOUND)\n", label, path)
	case !info.IsDir():
		fmt.Printf("    %-16s %s (NOT A DIRECTORY)\n", label, path)
	default:
		fmt.Printf("    %-16s %s (OK)\n", label, path)
	}
}

func checkFile(label, path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("    %-16s %s (NOT FOUND)\n", label, path)
	} else {
		fmt.Printf("    %-16s %s (OK)\n", label, path)
	}
}

func checkWritable(label, dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Printf("    %-16s %s (NOT WRITABLE: %s)\n", label, dir, err)
		return
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		fmt.Printf("    %-16s %s (NOT WRITABLE: %s)\n", label, dir, err)
		return
	}
	os.Remove(probe)
	fmt.Printf("    %-16s %s (OK)\n", label, dir)
}
