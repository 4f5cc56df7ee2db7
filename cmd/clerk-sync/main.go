// Command clerk-sync backfills users from a Clerk user export.
//
// Usage:
//
//	go run ./cmd/clerk-sync users.json
//	clerk-sync < users.json
//
// The input is a JSON array of Clerk user objects as returned by the Clerk
// Backend API. Users that already exist are left untouched.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/wayfarer/social-service/internal/app"
	"github.com/wayfarer/social-service/internal/config"
	"github.com/wayfarer/social-service/internal/domain"
	"github.com/wayfarer/social-service/internal/store"
)

type userSyncer interface {
	GetUserByClerkID(ctx context.Context, clerkUserID string) (*domain.User, error)
	CreateUser(ctx context.Context, input app.CreateUserInput) (string, error)
}

type syncResult struct {
	Created  int
	Existing int
	Failed   int
}

func main() {
	if len(os.Args) > 2 {
		fmt.Println("Usage: clerk-sync [users.json]")
		fmt.Println("Reads stdin when no file is given.")
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	input := io.Reader(os.Stdin)
	if len(os.Args) == 2 {
		file, err := os.Open(os.Args[1])
		if err != nil {
			log.Fatalf("Failed to open %s: %v", os.Args[1], err)
		}
		defer file.Close()
		input = file
	}

	records, err := decodeUsers(input)
	if err != nil {
		log.Fatalf("Failed to read users: %v", err)
	}
	fmt.Printf("Read %d users\n", len(records))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to parse DATABASE_URL: %v", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbpool.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := store.ApplyMigrations(ctx, dbpool, logger); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	// The running service dispatches the queued user.created events.
	users := app.NewUserService(store.NewPostgresRepository(dbpool), nil, logger, cfg.EventsExchange)
	result := syncUsers(ctx, users, records, os.Stdout)

	fmt.Printf("\nDone: %d created, %d already present, %d failed\n", result.Created, result.Existing, result.Failed)
	if result.Failed > 0 {
		os.Exit(1)
	}
}

func decodeUsers(r io.Reader) ([]domain.ClerkUserData, error) {
	var records []domain.ClerkUserData
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("expected a JSON array of Clerk users: %w", err)
	}
	return records, nil
}

// syncUsers creates every record that has no user yet, using the same field
// mapping as the Clerk webhook.
func syncUsers(ctx context.Context, users userSyncer, records []domain.ClerkUserData, out io.Writer) syncResult {
	var result syncResult
	for _, record := range records {
		if strings.TrimSpace(record.ID) == "" {
			fmt.Fprintln(out, "skipping record without id")
			result.Failed++
			continue
		}

		existing, err := users.GetUserByClerkID(ctx, record.ID)
		if err != nil {
			fmt.Fprintf(out, "%s: lookup failed: %v\n", record.ID, err)
			result.Failed++
			continue
		}
		if existing != nil {
			result.Existing++
			continue
		}

		userID, err := users.CreateUser(ctx, app.CreateUserInput{
			ClerkUserID: record.ID,
			Email:       record.PrimaryEmail(),
			DisplayName: record.DisplayName(),
		})
		if err != nil {
			fmt.Fprintf(out, "%s: create failed: %v\n", record.ID, err)
			result.Failed++
			continue
		}
		fmt.Fprintf(out, "%s: created %s (%s)\n", record.ID, userID, record.DisplayName())
		result.Created++
	}
	return result
}
