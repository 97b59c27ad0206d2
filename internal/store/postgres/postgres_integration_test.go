package postgres

import (
	"os"
	"testing"

	"github.com/crewledger/crewledger/internal/store"
	"github.com/crewledger/crewledger/internal/store/storetest"
)

// Runs the shared compliance suite against a real Postgres when
// CREWLEDGER_TEST_POSTGRES_DSN is set; skipped otherwise.
func TestPostgresStoreSuite(t *testing.T) {
	dsn := os.Getenv("CREWLEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CREWLEDGER_TEST_POSTGRES_DSN not set")
	}

	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		return New(db)
	})
}
