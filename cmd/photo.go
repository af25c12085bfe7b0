package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var photoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Photo commands",
}

var photoIndexCmd = &cobra.Command{
	Use:   "index <photo-id> <file>",
	Short: "Index the faces of an already registered photo",
	Long: `Extract the faces of file and store them for photo-id. The photo must
exist in the photo directory and must not have encodings yet.`,
	Args: cobra.ExactArgs(2),
	RunE: runPhotoIndex,
}

var photoDeleteCmd = &cobra.Command{
	Use:   "delete <photo-id> [photo-id...]",
	Short: "Delete photos with their encodings and stored files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPhotoDelete,
}

func init() {
	rootCmd.AddCommand(photoCmd)
	photoCmd.AddCommand(photoIndexCmd)
	photoCmd.AddCommand(photoDeleteCmd)
}

func runPhotoIndex(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
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

	res, err := b.engine.Ingest(cmd.Context(), args[0], data)
	if err != nil {
		return err
	}
	fmt.Printf("Photo %s: %d faces detected, %d encodings stored", res.PhotoID, res.FacesDetected, res.EncodingsStored)
	if res.FailedFaces > 0 {
		fmt.Printf(", %d faces failed", res.FailedFaces)
	}
	fmt.Println()
	return nil
}

func runPhotoDelete(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := openBackends(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	var failed int
	for _, id := range args {
		if err := b.engine.DeletePhoto(cmd.Context(), id); err != nil {
			fmt.Printf("  %s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("  %s: deleted\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d photos could not be deleted", failed, len(args))
	}
	return nil
}
