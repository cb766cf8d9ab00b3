package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"inkbook/internal/config"
	"inkbook/internal/middleware"
	"inkbook/internal/service"
	"inkbook/internal/tour"
	"inkbook/internal/validation"

	"github.com/spf13/cobra"
)

func gapsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "List the emptiest upcoming tour days",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore()
			if err != nil {
				return err
			}
			defer core.Close()

			gaps, err := service.NewGapService(core.Repos.Tours, core.Repos.Bookings).Find(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printGaps(cmd.OutOrStdout(), gaps)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", service.DefaultGapLimit, "Maximum days")
	return cmd
}

func printGaps(w io.Writer, gaps []tour.Gap) {
	if len(gaps) == 0 {
		fmt.Fprintln(w, "No gaps: every upcoming day has bookings.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCITY\tBOOKED\tOPEN\tSEVERITY")
	for _, g := range gaps {
		fmt.Fprintf(tw, "%s\t%s %s\t%d\t%d\t%s\n", g.Date, g.CountryFlag, g.CityName, g.BookingCount, g.OpenSlots, g.Severity)
	}
	tw.Flush()
}

func backfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-clients",
		Short: "Rebuild every CRM client from the bookings table",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore()
			if err != nil {
				return err
			}
			defer core.Close()

			n, err := core.Clients.Backfill(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%d clients rebuilt\n", n)
			return err
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token [staff-id]",
		Short: "Issue a staff API token signed with STAFF_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != middleware.RoleStaff && role != middleware.RoleAdmin {
				return fmt.Errorf("role must be %q or %q", middleware.RoleStaff, middleware.RoleAdmin)
			}

			cfg := config.Load()
			if cfg.StaffJWTSecret == "" {
				return fmt.Errorf("STAFF_JWT_SECRET is not set")
			}

			token, err := middleware.NewStaffToken(cfg.StaffJWTSecret, args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", middleware.RoleStaff, "Token role (staff, admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func validateCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Smoke-test a running API (creates one studio booking)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			return validation.Run(ctx, baseURL)
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the API")
	return cmd
}
