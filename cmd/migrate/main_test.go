package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNextVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_create_flip_sessions.up.sql",
		"000001_create_flip_sessions.down.sql",
		"000002_create_flip_rounds.up.sql",
		"000002_create_flip_rounds.down.sql",
		"README",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := nextVersion(dir)
	if err != nil {
		t.Fatalf("nextVersion() error = %v", err)
	}
	if got != 3 {
		t.Errorf("nextVersion() = %d, want 3", got)
	}
}

func TestNextVersion_Empty(t *testing.T) {
	got, err := nextVersion(t.TempDir())
	if err != nil || got != 1 {
		t.Errorf("nextVersion() = %d, %v, want 1", got, err)
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "000004_old.up.sql"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := createMigration(dir, "add_index"); err != nil {
		t.Fatalf("createMigration() error = %v", err)
	}
	for _, name := range []string{"000005_add_index.up.sql", "000005_add_index.down.sql"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestDSN(t *testing.T) {
	for _, key := range []string{"BLUEPRINT_DB_USERNAME", "BLUEPRINT_DB_PASSWORD", "BLUEPRINT_DB_PORT", "BLUEPRINT_DB_SCHEMA"} {
		t.Setenv(key, "")
	}
	t.Setenv("BLUEPRINT_DB_HOST", "db")
	t.Setenv("BLUEPRINT_DB_DATABASE", "audit")
	want := "postgres://postgres:postgres@db:5432/audit?sslmode=disable&search_path=public"
	if got := dsn(); got != want {
		t.Errorf("dsn() = %q, want %q", got, want)
	}
}
