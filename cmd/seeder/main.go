// cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"sort"

	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/config"
	"github.com/unclebandit/attestation-service/internal/db"
)

//go:embed seed/*.sql
var seedFiles embed.FS

func main() {
	seed := flag.Bool("seed", false, "load demo registry data after migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}
	logger.Info("migrations applied")

	if !*seed {
		return
	}
	applied, err := runSeeds(context.Background(), conn, seedFiles)
	if err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
	for _, f := range applied {
		logger.Info("seeded", zap.String("file", f))
	}
	logger.Info("database seeding completed")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// runSeeds executes every seed/*.sql file in name order.
func runSeeds(ctx context.Context, conn execer, files fs.FS) ([]string, error) {
	names, err := fs.Glob(files, "seed/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(files, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			return nil, fmt.Errorf("execute %s: %w", name, err)
		}
	}
	return names, nil
}
