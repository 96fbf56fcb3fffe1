package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nutriai/mealsync/pkg/mealsync"
)

func (a *app) mealCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meal",
		Short: "Write and list meals through the offline queue",
	}

	var file string
	create := &cobra.Command{
		Use:   "create",
		Short: "Record a meal read as JSON from --file or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meal, err := readMeal(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := a.newService()
			if err != nil {
				return err
			}
			svc.CheckConnectivity(cmd.Context())

			stored, outcome, err := svc.CreateMeal(cmd.Context(), meal)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", stored.ID, outcome)
			return nil
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "-", "meal JSON file, - for stdin")

	update := &cobra.Command{
		Use:   "update",
		Short: "Replace a meal read as JSON from --file or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meal, err := readMeal(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := a.newService()
			if err != nil {
				return err
			}
			svc.CheckConnectivity(cmd.Context())

			outcome, err := svc.UpdateMeal(cmd.Context(), meal)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", meal.ID, outcome)
			return nil
		},
	}
	update.Flags().StringVarP(&file, "file", "f", "-", "meal JSON file, - for stdin")

	del := &cobra.Command{
		Use:   "delete <meal-id>",
		Short: "Delete a meal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService()
			if err != nil {
				return err
			}
			svc.CheckConnectivity(cmd.Context())

			outcome, err := svc.DeleteMeal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], outcome)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print locally known meals as JSON, including unsynced ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService()
			if err != nil {
				return err
			}
			meals, err := svc.ListMeals(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), meals)
		},
	}

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Reload meals from the remote, keep queued writes, and print them as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService()
			if err != nil {
				return err
			}
			if !svc.CheckConnectivity(cmd.Context()) {
				return errOffline
			}
			meals, err := svc.RefreshMeals(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), meals)
		},
	}

	cmd.AddCommand(create, update, del, list, refresh)
	return cmd
}

var errOffline = errors.New("remote is unreachable")

func readMeal(path string, stdin io.Reader) (mealsync.MealRecord, error) {
	var meal mealsync.MealRecord

	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return meal, err
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(&meal); err != nil {
		return meal, fmt.Errorf("decode meal: %w", err)
	}
	if meal.Extra != "" {
		return meal, fmt.Errorf("decode meal: unknown fields %s", meal.Extra)
	}
	return meal, nil
}
