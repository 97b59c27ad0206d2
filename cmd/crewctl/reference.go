package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewledger/crewledger/internal/model"
)

func init() {
	projectsCmd := &cobra.Command{Use: "projects", Short: "Project list operations"}

	projectsAddCmd := &cobra.Command{
		Use:   "add NAME...",
		Short: "Add one or more active projects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			ctx := context.Background()
			for _, name := range args {
				p, err := st.Projects().Create(ctx, &model.Project{Name: name})
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%s\t%s\n", p.ID, p.Name)
			}
			return nil
		},
	}
	projectsCmd.AddCommand(projectsAddCmd)

	projectsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List active projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			ps, err := st.Projects().ListActive(context.Background())
			if err != nil {
				return err
			}
			for _, p := range ps {
				fmt.Fprintf(os.Stdout, "%s\t%s\n", p.ID, p.Name)
			}
			return nil
		},
	}
	projectsCmd.AddCommand(projectsListCmd)
	rootCmd.AddCommand(projectsCmd)

	categoriesCmd := &cobra.Command{Use: "categories", Short: "Category list operations"}

	categoriesSeedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the default spend categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			ctx := context.Background()
			defaults := []string{"Materials", "Fuel", "Food & Drinks", "Safety Gear", "Lodging", "Tools", "Other"}
			for i, name := range defaults {
				c, err := st.Categories().Create(ctx, &model.Category{Name: name, DisplayOrder: i})
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%s\t%s\n", c.ID, c.Name)
			}
			return nil
		},
	}
	categoriesCmd.AddCommand(categoriesSeedCmd)

	categoriesAddCmd := &cobra.Command{
		Use:   "add NAME...",
		Short: "Add one or more categories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			ctx := context.Background()
			for _, name := range args {
				c, err := st.Categories().Create(ctx, &model.Category{Name: name})
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%s\t%s\n", c.ID, c.Name)
			}
			return nil
		},
	}
	categoriesCmd.AddCommand(categoriesAddCmd)

	categoriesListCmd := &cobra.Command{
		Use:   "list",
		Short: "List active categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			cs, err := st.Categories().ListActive(context.Background())
			if err != nil {
				return err
			}
			for _, c := range cs {
				fmt.Fprintf(os.Stdout, "%s\t%s\n", c.ID, c.Name)
			}
			return nil
		},
	}
	categoriesCmd.AddCommand(categoriesListCmd)
	rootCmd.AddCommand(categoriesCmd)
}
