package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/models"
	"inkbook/internal/service"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout of a tour plan.
type seedFile struct {
	Segments []seedSegment `yaml:"segments"`
}

type seedSegment struct {
	Country string   `yaml:"country"`
	Flag    string   `yaml:"flag"`
	City    string   `yaml:"city"`
	Start   string   `yaml:"start"`
	End     string   `yaml:"end"`
	Slots   []string `yaml:"slots"`
}

// parseSeed decodes a tour plan. Unknown keys are rejected so typos do not
// silently drop fields.
func parseSeed(r io.Reader) ([]models.TourSegmentRequest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f seedFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("seed file is empty")
		}
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	reqs := make([]models.TourSegmentRequest, 0, len(f.Segments))
	for _, s := range f.Segments {
		reqs = append(reqs, models.TourSegmentRequest{
			CountryName: s.Country,
			CountryFlag: s.Flag,
			CityName:    s.City,
			StartDate:   s.Start,
			EndDate:     s.End,
			TimeSlots:   s.Slots,
		})
	}
	return reqs, nil
}

func seedCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Create tour segments from a YAML plan",
		Long: `Create tour segments from a YAML plan. Segments overlapping an
existing one are skipped, so a plan can be re-applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			reqs, err := parseSeed(f)
			if err != nil {
				return err
			}

			if dryRun {
				for _, r := range reqs {
					fmt.Fprintf(cmd.OutOrStdout(), "would create %s %s..%s %v\n", r.CityName, r.StartDate, r.EndDate, r.TimeSlots)
				}
				return nil
			}

			core, err := openCore()
			if err != nil {
				return err
			}
			defer core.Close()

			tours := service.NewTourService(core.Repos.Tours, core.Repos.Bookings)
			return applySeed(cmd, tours, reqs)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be created without making changes")
	return cmd
}

func applySeed(cmd *cobra.Command, tours *service.TourService, reqs []models.TourSegmentRequest) error {
	out := cmd.OutOrStdout()
	created, skipped := 0, 0

	for i := range reqs {
		r := &reqs[i]
		seg, err := tours.Create(cmd.Context(), r)
		switch {
		case err == nil:
			created++
			fmt.Fprintf(out, "created  %s %s..%s (%s)\n", seg.CityName, seg.StartDate, seg.EndDate, seg.ID)
		case errors.Is(err, apperrors.ErrConflict):
			skipped++
			fmt.Fprintf(out, "skipped  %s %s..%s: %v\n", r.CityName, r.StartDate, r.EndDate, err)
		default:
			return fmt.Errorf("segment %d (%s): %w", i+1, r.CityName, err)
		}
	}

	fmt.Fprintf(out, "%d created, %d skipped\n", created, skipped)
	return nil
}
