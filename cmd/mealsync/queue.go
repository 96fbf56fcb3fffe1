package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func (a *app) queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit pending writes",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print pending writes as JSON, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc.Queue(cmd.Context()))
		},
	}

	drop := &cobra.Command{
		Use:   "drop <meal-id>",
		Short: "Discard every pending write for a meal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService()
			if err != nil {
				return err
			}
			n := svc.DropEntries(cmd.Context(), args[0])
			if n == 0 {
				return fmt.Errorf("no pending writes for %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d\n", n)
			return nil
		},
	}

	var force bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard all pending writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to discard unsynced writes without --force")
			}
			svc, err := a.newService()
			if err != nil {
				return err
			}
			return svc.ClearQueue(cmd.Context())
		},
	}
	clearCmd.Flags().BoolVar(&force, "force", false, "confirm discarding all pending writes")

	cmd.AddCommand(list, drop, clearCmd)
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
