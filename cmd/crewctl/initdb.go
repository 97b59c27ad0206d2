package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewledger/crewledger/internal/config"
	"github.com/crewledger/crewledger/internal/store/postgres"
	"github.com/crewledger/crewledger/internal/store/sqlite"
)

func init() {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create or update the datastore schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
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
					return err
				}
				defer func() { _ = db.Close() }()
				if err := sqlite.EnsureSchema(db); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "sqlite schema ready at %s\n", path)
			case "postgres":
				dsn := cfg.PostgresDSN
				if dsnFlag != "" {
					dsn = dsnFlag
				}
				db, err := postgres.Open(dsn)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				if err := postgres.EnsureSchema(db); err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, "postgres schema ready")
			default:
				return fmt.Errorf("unsupported driver: %s", driver)
			}
			return nil
		},
	}
	rootCmd.AddCommand(initCmd)
}
