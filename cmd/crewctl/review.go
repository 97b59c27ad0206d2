package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewledger/crewledger/internal/model"
	"github.com/crewledger/crewledger/internal/reply"
)

func init() {
	recordsCmd := &cobra.Command{Use: "records", Short: "Intake record operations"}

	flaggedCmd := &cobra.Command{
		Use:   "flagged",
		Short: "List flagged records awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			recs, err := st.Records().ListFlagged(context.Background())
			if err != nil {
				return err
			}
			for _, r := range recs {
				vendor := "?"
				if r.Vendor != nil {
					vendor = *r.Vendor
				}
				reason := ""
				if r.FlagReason != nil {
					reason = *r.FlagReason
				}
				fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\n", r.ID, vendor, reply.TotalString(r.Total), reason)
			}
			return nil
		},
	}
	recordsCmd.AddCommand(flaggedCmd)

	var reason string
	statusCmd := &cobra.Command{
		Use:   "set-status RECORD_ID STATUS",
		Short: "Set a record's status (pending, confirmed, flagged, rejected, deleted, duplicate)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := model.ParseRecordStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status: %s", args[1])
			}
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			var r *string
			if reason != "" {
				r = &reason
			}
			return st.Records().UpdateStatus(context.Background(), args[0], status, r)
		},
	}
	statusCmd.Flags().StringVar(&reason, "reason", "", "Flag reason to record with the status")
	recordsCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(recordsCmd)

	contactsCmd := &cobra.Command{
		Use:   "contacts",
		Short: "List unknown senders queued for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			cs, err := st.UnknownContacts().List(context.Background())
			if err != nil {
				return err
			}
			for _, c := range cs {
				excerpt := ""
				if c.Excerpt != nil {
					excerpt = *c.Excerpt
				}
				media := ""
				if c.HasMedia {
					media = "[media]"
				}
				fmt.Fprintf(os.Stdout, "%s\t%s\t%s %s\n", c.SeenAt.Format("2006-01-02 15:04"), c.ContactID, media, excerpt)
			}
			return nil
		},
	}
	rootCmd.AddCommand(contactsCmd)
}
