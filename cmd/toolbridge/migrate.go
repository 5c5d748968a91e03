package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/BaSui01/toolbridge/config"
	"github.com/BaSui01/toolbridge/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

// runMigrate 用法：toolbridge migrate <subcommand> [args] [--config path]
func runMigrate(args []string) {
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}
	subcommand := args[0]

	fs := flag.NewFlagSet("migrate "+subcommand, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := initLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	defer func() { _ = logger.Sync() }()

	migrator, err := migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := migration.NewCLI(migrator).Run(context.Background(), subcommand, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		migrator.Close()
		os.Exit(1)
	}
}
