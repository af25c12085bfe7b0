package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/selfie-finder/internal/engine"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event commands",
}

var eventDeleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete every photo of an event",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventDelete,
}

var eventReindexCmd = &cobra.Command{
	Use:   "reindex <event-id>",
	Short: "Index event photos that have no encodings yet",
	Long: `Read the stored bytes of every event photo without encodings, for
example photos uploaded while face recognition was unavailable, and index
them. Photos that already have encodings are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runEventReindex,
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventDeleteCmd)
	eventCmd.AddCommand(eventReindexCmd)
	eventDeleteCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

func runEventDelete(cmd *cobra.Command, args []string) error {
	eventID := args[0]
	if !mustGetBool(cmd, "yes") {
		fmt.Printf("Delete every photo of event %s? [y/N] ", eventID)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := openBackends(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	ids, err := b.engine.DeleteEvent(cmd.Context(), eventID)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d photos from event %s\n", len(ids), eventID)
	return nil
}

func runEventReindex(cmd *cobra.Command, args []string) error {
	eventID := args[0]

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := openBackends(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	var bar *progressbar.ProgressBar
	res, err := b.engine.Reindex(cmd.Context(), eventID, func(p engine.ReindexProgress) {
		if bar == nil {
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetDescription("Reindexing"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetItsString("photos"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionFullWidth(),
			)
		}
		bar.Set(p.Current)
	})
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	fmt.Printf("\nScanned:  %d\n", res.Scanned)
	fmt.Printf("Skipped:  %d (already indexed)\n", res.Skipped)
	fmt.Printf("Indexed:  %d (%d encodings)\n", res.Indexed, res.EncodingsStored)
	fmt.Printf("No faces: %d\n", res.NoFaces)
	fmt.Printf("Missing:  %d\n", res.Missing)
	fmt.Printf("Failed:   %d\n", res.Failed)
	return nil
}
