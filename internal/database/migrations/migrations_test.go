package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var got string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return true
}

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	for _, table := range []string{"trails", "positions", "schema_migrations"} {
		if !tableExists(t, db, table) {
			t.Errorf("Table %s was not created", table)
		}
	}
}

func TestCheckStatus(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)
		err := CheckStatus(db)
		if !errors.Is(err, ErrNeedsMigration) {
			t.Errorf("CheckStatus() error = %v, want ErrNeedsMigration", err)
		}
	})

	t.Run("current after migration", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() failed: %v", err)
		}
		if err := CheckStatus(db); err != nil {
			t.Errorf("CheckStatus() after migration returned error: %v", err)
		}

		st, err := ReadStatus(db)
		if err != nil {
			t.Fatalf("ReadStatus() error = %v", err)
		}
		if !st.Current() {
			t.Errorf("ReadStatus() = %+v, want current", st)
		}
	})
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after double migration returned error: %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := MigrateDown(db); err != nil {
		t.Fatalf("MigrateDown() failed: %v", err)
	}
	if tableExists(t, db, "trails") || tableExists(t, db, "positions") {
		t.Error("tables still present after MigrateDown()")
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 2 {
		t.Errorf("LatestVersion() = %d, want 2", v)
	}
}
