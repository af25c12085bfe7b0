package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/selfie-finder/internal/engine"
)

var searchCmd = &cobra.Command{
	Use:   "search <event-id> <selfie>",
	Short: "Find the photos of an event that contain the person in a selfie",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Float64("threshold", 0, "Match threshold (overrides MATCH_THRESHOLD)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	eventID, selfiePath := args[0], args[1]

	selfie, err := os.ReadFile(selfiePath)
	if err != nil {
		return fmt.Errorf("failed to read selfie: %w", err)
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if threshold := mustGetFloat64(cmd, "threshold"); threshold > 0 {
		cfg.Match.Threshold = threshold
	}

	b, err := openBackends(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	res, err := b.engine.Search(cmd.Context(), eventID, selfie)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch res.Outcome {
	case engine.OutcomeMatched:
		fmt.Printf("Found %d photos:\n", len(res.PhotoIDs))
		for _, id := range res.PhotoIDs {
			fmt.Printf("  %s\n", id)
		}
		return nil
	case engine.OutcomeNoMatch:
		fmt.Println(res.Message)
		return nil
	default:
		return fmt.Errorf("%s: %s", res.Outcome, res.Message)
	}
}
