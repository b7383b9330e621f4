package migrations

import (
	"strings"
	"testing"

	"github.com/danthegoodman1/pqframe/utils"
)

func TestEmbeddedMigrations(t *testing.T) {
	found, err := source().FindMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(found) == 0 {
		t.Fatal("no migrations embedded")
	}
	if !strings.Contains(strings.Join(found[0].Up, "\n"), "create table if not exists fragments") {
		t.Fatalf("unexpected first migration %s: %v", found[0].Id, found[0].Up)
	}
	if len(found[0].Down) == 0 {
		t.Fatal("first migration has no down step")
	}
}

func TestRunMigrations(t *testing.T) {
	if utils.CRDB_DSN == "" {
		t.Skip("CRDB_DSN not set")
	}
	if _, err := RunMigrations(utils.CRDB_DSN); err != nil {
		t.Fatal(err)
	}
	if err := CheckMigrations(utils.CRDB_DSN); err != nil {
		t.Fatal(err)
	}
}
