package main

import (
	"fmt"

	"github.com/amaumene/stremarr/internal/controllers"
	"github.com/amaumene/stremarr/internal/metrics"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/spf13/cobra"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <item-id>",
		Short: "Probe one media item now and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := ctx.ensureDatabase()
			if err != nil {
				return err
			}

			media, err := db.GetMediaByID(id)
			if err != nil {
				if models.IsNotFound(err) {
					return fmt.Errorf("media %d not found", id)
				}
				return fmt.Errorf("failed to load media: %w", err)
			}

			availabilityCtrl, err := buildAvailability(cfg, db, metrics.NewNop(), logger)
			if err != nil {
				return err
			}

			verdict, err := availabilityCtrl.CheckAvailability(cmd.Context(), media, controllers.TriggerManual)
			if err != nil {
				return err
			}

			printVerdict(cmd, media, verdict)
			return nil
		},
	}
}

func printVerdict(cmd *cobra.Command, media *models.Media, verdict models.Verdict) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s, id %d)\n", media.Title, media.Kind, media.ID)
	if !verdict.Available {
		fmt.Fprintf(out, "Unavailable: %s\n", verdict.Reason)
		return
	}

	fmt.Fprintf(out, "Available: %d streams\n", verdict.StreamCount)
	for _, addon := range verdict.Addons {
		fmt.Fprintf(out, "  %s: %d\n", addon.AddonName, addon.StreamCount)
		for _, s := range addon.Streams {
			fmt.Fprintf(out, "    %s", s.Name)
			if s.Quality != "" {
				fmt.Fprintf(out, " [%s]", s.Quality)
			}
			if s.Size != "" {
				fmt.Fprintf(out, " %s", s.Size)
			}
			fmt.Fprintln(out)
		}
	}
}
