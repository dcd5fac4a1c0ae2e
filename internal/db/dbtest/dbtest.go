// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

var seq atomic.Int64

// Open returns an in-memory database with the full schema applied. Each call
// gets its own named database so tests never share state.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	name := fmt.Sprintf("quiztest-%d-%d", time.Now().UnixNano(), seq.Add(1))
	dsn := "file:" + name + "?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sqldb, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	return sqldb
}

// SeedUser inserts a bare user row so rows referencing it satisfy foreign keys.
func SeedUser(t *testing.T, sqldb *sql.DB, id, role string) {
	t.Helper()
	_, err := sqldb.Exec(`INSERT INTO users (id,email,password_hash,first_name,last_name,role,created_at)
		VALUES ($1,$2,'x','','',$3,$4)`, id, id+"@example.test", role, time.Now().Unix())
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}
