package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewledger/crewledger/internal/config"
	"github.com/crewledger/crewledger/internal/store"
	"github.com/crewledger/crewledger/internal/store/postgres"
	"github.com/crewledger/crewledger/internal/store/sqlite"
)

var (
	driverFlag string
	dsnFlag    string
	rootCmd    = &cobra.Command{
		Use:   "crewctl",
		Short: "Admin CLI for the CrewLedger intake datastore",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&driverFlag, "driver", "d", "", "Datastore driver (sqlite, postgres); defaults to CREWLEDGER_ env config")
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "Datastore DSN or sqlite path; defaults to CREWLEDGER_ env config")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore resolves driver and DSN from flags with env config as fallback.
func openStore() (store.Store, *sql.DB, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	driver := cfg.DBDriver
	if driverFlag != "" {
		driver = driverFlag
	}

	switch driver {
	case "sqlite":
		path := cfg.SQLitePath
		if dsnFlag != "" {
			path = dsnFlag
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.EnsureSchema(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqlite.New(db), db, nil
	case "postgres":
		dsn := cfg.PostgresDSN
		if dsnFlag != "" {
			dsn = dsnFlag
		}
		db, err := postgres.Open(dsn)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(db), db, nil
	}
	return nil, nil, fmt.Errorf("unsupported driver: %s", driver)
}
