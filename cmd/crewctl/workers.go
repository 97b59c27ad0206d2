package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewledger/crewledger/internal/model"
	"github.com/crewledger/crewledger/internal/services"
)

func init() {
	workersCmd := &cobra.Command{Use: "workers", Short: "Worker directory operations"}

	// add
	var phone, name, crew, lang string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a worker by phone number",
		RunE: func(cmd *cobra.Command, args []string) error {
			if phone == "" || name == "" {
				return fmt.Errorf("--phone and --name required")
			}
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if lang != "" && lang != "en" && lang != "es" {
				return fmt.Errorf("--lang must be en or es")
			}
			w := &model.Worker{ContactID: services.NormalizePhone(phone), Name: name}
			if crew != "" {
				w.Crew = &crew
			}
			if lang != "" {
				w.Language = &lang
			}
			out, err := st.Workers().Register(context.Background(), w)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", out.ID, out.ContactID, out.Name)
			return nil
		},
	}
	addCmd.Flags().StringVarP(&phone, "phone", "p", "", "Phone number (required)")
	addCmd.Flags().StringVarP(&name, "name", "n", "", "Worker name (required)")
	addCmd.Flags().StringVarP(&crew, "crew", "c", "", "Crew label")
	addCmd.Flags().StringVarP(&lang, "lang", "l", "en", "Reply language, en or es (empty asks the worker on first text)")
	_ = addCmd.MarkFlagRequired("phone")
	_ = addCmd.MarkFlagRequired("name")
	workersCmd.AddCommand(addCmd)

	// list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			ws, err := st.Workers().List(context.Background())
			if err != nil {
				return err
			}
			for _, w := range ws {
				state := "active"
				if !w.Active {
					state = "inactive"
				}
				fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\n", w.ID, w.ContactID, w.Name, state)
			}
			return nil
		},
	}
	workersCmd.AddCommand(listCmd)

	// deactivate
	deactivateCmd := &cobra.Command{
		Use:   "deactivate WORKER_ID",
		Short: "Deactivate a worker (their messages are silenced)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return st.Workers().Deactivate(context.Background(), args[0])
		},
	}
	workersCmd.AddCommand(deactivateCmd)

	rootCmd.AddCommand(workersCmd)
}
