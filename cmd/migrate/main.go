package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"flipzone/internal/database"
)

type command struct {
	name  string
	usage string
	run   func(db *sql.DB, dir string) error
}

var commands = []command{
	{"up", "Apply all pending audit migrations", func(db *sql.DB, dir string) error {
		return database.RunMigrations(db, dir)
	}},
	{"down", "Roll back the most recent migration", func(db *sql.DB, dir string) error {
		if err := database.RollbackMigration(db, dir); err != nil {
			return err
		}
		log.Println("[MIGRATE] Rolled back one step")
		return nil
	}},
	{"version", "Print the applied schema version", func(db *sql.DB, dir string) error {
		version, dirty, err := database.GetMigrationVersion(db, dir)
		if err != nil {
			return err
		}
		if dirty {
			log.Printf("[MIGRATE] Version %d is DIRTY, fix it by hand before migrating again", version)
			return nil
		}
		log.Printf("[MIGRATE] Version %d", version)
		return nil
	}},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	dir := getEnv("MIGRATIONS_PATH", "./migrations")

	if name == "create" {
		if len(os.Args) < 3 {
			log.Fatal("usage: migrate create <name>")
		}
		if err := createMigration(dir, os.Args[2]); err != nil {
			log.Fatalf("[MIGRATE] %v", err)
		}
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		log.Printf("[MIGRATE] Unknown command %q", name)
		printUsage()
		os.Exit(1)
	}

	db, err := sql.Open("pgx", dsn())
	if err != nil {
		log.Fatalf("[MIGRATE] Open database: %v", err)
	}
	defer db.Close()

	if err := cmd.run(db, dir); err != nil {
		log.Fatalf("[MIGRATE] %s: %v", cmd.name, err)
	}
}

// dsn mirrors database.ConnString but with local development defaults.
func dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
		getEnv("BLUEPRINT_DB_PASSWORD", "postgres"),
		getEnv("BLUEPRINT_DB_HOST", "localhost"),
		getEnv("BLUEPRINT_DB_PORT", "5432"),
		getEnv("BLUEPRINT_DB_DATABASE", "flipzone"),
		getEnv("BLUEPRINT_DB_SCHEMA", "public"),
	)
}

// nextVersion is one past the highest numeric prefix in dir.
func nextVersion(dir string) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		prefix, _, ok := strings.Cut(file.Name(), "_")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(prefix); err == nil && v > highest {
			highest = v
		}
	}
	return highest + 1, nil
}

func createMigration(dir, name string) error {
	version, err := nextVersion(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}

	stamp := time.Now().UTC().Format(time.RFC3339)
	for _, f := range []struct{ suffix, header string }{
		{"up", fmt.Sprintf("-- %s\n-- created %s\n\n", name, stamp)},
		{"down", fmt.Sprintf("-- revert %s\n\n", name)},
	} {
		path := filepath.Join(dir, fmt.Sprintf("%06d_%s.%s.sql", version, name, f.suffix))
		if err := os.WriteFile(path, []byte(f.header), 0644); err != nil {
			return err
		}
		log.Printf("[MIGRATE] Created %s", path)
	}
	return nil
}

func printUsage() {
	fmt.Println("FlipZone audit database migrations")
	fmt.Println()
	fmt.Println("Usage:")
	for _, c := range commands {
		fmt.Printf("  migrate %-16s %s\n", c.name, c.usage)
	}
	fmt.Printf("  migrate %-16s %s\n", "create <name>", "Write an empty up/down pair")
	fmt.Println()
	fmt.Println("Reads BLUEPRINT_DB_{HOST,PORT,DATABASE,USERNAME,PASSWORD,SCHEMA} and MIGRATIONS_PATH.")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
