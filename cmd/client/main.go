package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	clientapi "github.com/iudanet/finkeeper/internal/client/api"
	"github.com/iudanet/finkeeper/internal/client/auth"
	"github.com/iudanet/finkeeper/internal/client/cli"
	"github.com/iudanet/finkeeper/internal/client/data"
	"github.com/iudanet/finkeeper/internal/client/iocli"
	"github.com/iudanet/finkeeper/internal/client/storage/boltdb"
	syncsvc "github.com/iudanet/finkeeper/internal/client/sync"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "finkeeper-client.db", "Path to local database")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn, // в интерактивном клиенте лог не должен шуметь
	}))

	boltStorage, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	apiClient := clientapi.NewClient(*serverURL)
	authService := auth.NewService(apiClient, boltStorage, boltStorage, logger)
	dataService := data.NewService(boltStorage, logger)
	syncService := syncsvc.NewService(apiClient, boltStorage, boltStorage, logger)

	app := cli.New(iocli.NewStdio(), apiClient, authService, dataService, syncService)

	if err := app.Run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("FinKeeper Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
