// Command migrate applies the pipeline schema (companies, contacts,
// opportunities) embedded in the migrations package.
//
// Usage:
//
//	migrate               apply all pending migrations
//	migrate down          roll back the most recent migration
//	migrate force <v>     mark the schema at version v without running anything
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appmigrations "github.com/baxterlabs/pipeline-platform/migrations"
)

func main() {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("postgres driver: %v", err)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		log.Fatalf("embedded migrations: %v", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	defer func() { _, _ = m.Close() }()

	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "down":
			if err := m.Steps(-1); err != nil {
				log.Fatalf("roll back pipeline schema: %v", err)
			}
			report(m, "rolled back one migration")
			return
		case "force":
			if len(os.Args) < 3 {
				log.Fatal("force requires a version")
			}
			version, err := strconv.Atoi(os.Args[2])
			if err != nil {
				log.Fatalf("invalid version: %v", err)
			}
			if err := m.Force(version); err != nil {
				log.Fatalf("force version: %v", err)
			}
			fmt.Printf("forced pipeline schema to version %d\n", version)
			return
		}
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		report(m, "pipeline schema already current")
	case err != nil:
		log.Fatalf("apply pipeline schema: %v", err)
	default:
		report(m, "pipeline schema migrated")
	}
}

func report(m *migrate.Migrate, msg string) {
	version, dirty, err := m.Version()
	if err != nil {
		fmt.Println(msg)
		return
	}
	if dirty {
		fmt.Printf("%s, at version %d (dirty)\n", msg, version)
		return
	}
	fmt.Printf("%s, at version %d\n", msg, version)
}
