//cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/unclebandit/smsleopard-intake/internal/config"
	"github.com/unclebandit/smsleopard-intake/internal/db"
	"github.com/unclebandit/smsleopard-intake/internal/logger"
	"github.com/unclebandit/smsleopard-intake/internal/repository"
	"github.com/unclebandit/smsleopard-intake/internal/service"
)

func main() {
	csvPath := flag.String("csv", "seed/contacts.csv", "contacts CSV to ingest")
	template := flag.String("message", "Hi {name}, greetings from {company}!", "message template")
	flag.Parse()

	cfg, _, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	l := logger.NewLogger(cfg.LogLevel)

	if err := run(context.Background(), cfg.DatabaseURL, *csvPath, *template, l); err != nil {
		l.Error("Seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, csvPath, template string, l *slog.Logger) error {
	data, err := os.ReadFile(csvPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", csvPath, err)
	}

	conn, dialect, err := db.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, dialect); err != nil {
		return err
	}

	ingest := service.NewIngestService(repository.NewOutcomeRepository(conn, dialect), service.NewPhoneValidator(), nil, "", l)
	result, err := ingest.ProcessCSV(ctx, data, template)
	if err != nil {
		return err
	}

	fmt.Printf("Seeded %s: %d processed, %d failed, %d duplicates skipped\n",
		csvPath, result.Processed, result.Failed, result.SkippedDuplicates)
	return nil
}
