package sqlite

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/crewledger/crewledger/internal/store"
	"github.com/crewledger/crewledger/internal/store/storetest"
)

var memCounter int

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	memCounter++
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared&_pragma=foreign_keys(ON)", memCounter)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

func TestSQLiteStoreSuite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New(newTestDB(t))
	})
}
