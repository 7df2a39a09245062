// Package main is the entry point for the Barrett Share database
// migration tool. It applies the embedded schema migrations for both the
// SQLite and PostgreSQL drivers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/config"
	"github.com/prn-tf/barrett-share/internal/repository/postgres"
	"github.com/prn-tf/barrett-share/internal/repository/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "version":
		fmt.Printf("Barrett Share Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up":
		err = runUp(args)

	case "status":
		err = runStatus(args)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runUp applies all pending migrations.
func runUp(args []string) error {
	fs := flag.NewFlagSet("up", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if cfg.Database.IsEmbedded() {
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("sqlite migrations applied")
		return nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("postgres migrations applied")
	return nil
}

// runStatus reports whether the schema is reachable and responsive.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := zerolog.Nop()

	if cfg.Database.IsEmbedded() {
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Health(ctx); err != nil {
			return fmt.Errorf("sqlite schema check failed: %w", err)
		}
		fmt.Printf("sqlite database at %s is healthy\n", cfg.Database.Path)
		return nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Health(ctx); err != nil {
		return fmt.Errorf("postgres schema check failed: %w", err)
	}
	fmt.Printf("postgres database %s is healthy\n", cfg.Database.Database)
	return nil
}

func printUsage() {
	fmt.Println(`Barrett Share Migration Tool

Usage:
  barrett-migrate <command> [arguments]

Commands:
  up          Apply all pending migrations
  status      Check database connectivity and schema health
  version     Print version information
  help        Show this help message

Examples:
  barrett-migrate up -config /etc/barrett/config.yaml
  barrett-migrate status

Use BARRETT_-prefixed environment variables or -config to point at the
server configuration.`)
}
