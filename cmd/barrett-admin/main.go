// Package main is the entry point for the Barrett Share admin CLI.
// This tool provides administrative commands for managing users and
// inspecting the file catalog and storage backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/auth"
	"github.com/prn-tf/barrett-share/internal/config"
	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/repository"
	"github.com/prn-tf/barrett-share/internal/repository/postgres"
	"github.com/prn-tf/barrett-share/internal/repository/sqlite"
	"github.com/prn-tf/barrett-share/internal/storage"
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
		fmt.Printf("Barrett Share Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "user":
		err = runUserCommand(args)

	case "file":
		err = runFileCommand(args)

	case "stats":
		err = runStats(args)

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

// openRepos loads configuration and connects to the database.
// The caller must invoke the returned close function.
func openRepos(configPath string) (*repository.Repositories, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := zerolog.Nop()

	if cfg.Database.IsEmbedded() {
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return &repository.Repositories{
			User: sqlite.NewUserRepository(db),
			File: sqlite.NewFileRepository(db),
		}, func() { db.Close() }, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return &repository.Repositories{
		User: postgres.NewUserRepository(db),
		File: postgres.NewFileRepository(db),
	}, func() { db.Close() }, nil
}

func runUserCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: barrett-admin user <create|list|delete> [flags]")
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("user create", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		username := fs.String("username", "", "username for the new account")
		password := fs.String("password", "", "password for the new account")
		fs.Parse(args[1:])

		if *username == "" || *password == "" {
			return fmt.Errorf("both -username and -password are required")
		}

		repos, closeDB, err := openRepos(*configPath)
		if err != nil {
			return err
		}
		defer closeDB()

		hash, err := auth.NewPasswordHasher().Hash(*password)
		if err != nil {
			return err
		}

		user := domain.NewUser(*username, hash)
		if err := repos.User.Create(context.Background(), user); err != nil {
			return err
		}
		fmt.Printf("created user %q (id %d)\n", user.Username, user.ID)
		return nil

	case "list":
		fs := flag.NewFlagSet("user list", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		fs.Parse(args[1:])

		repos, closeDB, err := openRepos(*configPath)
		if err != nil {
			return err
		}
		defer closeDB()

		result, err := repos.User.List(context.Background(), repository.ListOptions{Limit: 1000})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tCREATED")
		for _, u := range result.Items {
			fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Username, u.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()

	case "delete":
		fs := flag.NewFlagSet("user delete", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		id := fs.Int64("id", 0, "id of the user to delete")
		fs.Parse(args[1:])

		if *id == 0 {
			return fmt.Errorf("-id is required")
		}

		repos, closeDB, err := openRepos(*configPath)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := repos.User.Delete(context.Background(), *id); err != nil {
			return err
		}
		fmt.Printf("deleted user %d\n", *id)
		return nil
	}

	return fmt.Errorf("unknown user subcommand: %s", args[0])
}

func runFileCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: barrett-admin file <list> [flags]")
	}

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("file list", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		owner := fs.Int64("owner", 0, "only list files owned by this user id")
		fs.Parse(args[1:])

		repos, closeDB, err := openRepos(*configPath)
		if err != nil {
			return err
		}
		defer closeDB()

		ctx := context.Background()
		var files []*domain.FileRecord
		if *owner != 0 {
			files, err = repos.File.ListByOwner(ctx, *owner)
			if err != nil {
				return err
			}
		} else {
			result, err := repos.File.List(ctx, repository.ListOptions{Limit: 1000})
			if err != nil {
				return err
			}
			files = result.Items
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tOWNER\tFILENAME\tSIZE\tPERMISSION\tLINK")
		for _, f := range files {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				f.ID, f.OwnerUsername, f.OriginalFilename, f.Size, f.Permission, f.LinkID)
		}
		return w.Flush()
	}

	return fmt.Errorf("unknown file subcommand: %s", args[0])
}

// runStats prints catalog and storage usage.
func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repos, closeDB, err := openRepos(*configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := context.Background()

	users, err := repos.User.List(ctx, repository.ListOptions{Limit: 1})
	if err != nil {
		return err
	}
	files, err := repos.File.List(ctx, repository.ListOptions{Limit: 1})
	if err != nil {
		return err
	}

	fmt.Printf("users: %d\n", users.Total)
	fmt.Printf("files: %d\n", files.Total)

	if cfg.Storage.Backend == "filesystem" {
		backend, err := storage.NewFilesystemBackend(cfg.Storage.DataDir, cfg.Storage.TempDir, zerolog.Nop())
		if err != nil {
			return err
		}
		stats, err := backend.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("blobs: %d\n", stats.TotalBlobs)
		fmt.Printf("bytes: %d\n", stats.TotalSize)
	}

	return nil
}

func printUsage() {
	fmt.Println(`Barrett Share Admin CLI

Usage:
  barrett-admin <command> [arguments]

Commands:
  user        Manage users (create, list, delete)
  file        Inspect the file catalog (list)
  stats       Show catalog and storage usage
  version     Print version information
  help        Show this help message

Examples:
  barrett-admin user create -username admin -password changeme123
  barrett-admin user list
  barrett-admin file list -owner 1
  barrett-admin stats

Use BARRETT_-prefixed environment variables or -config to point at the
server configuration.`)
}
