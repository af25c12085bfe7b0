package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/selfie-finder/internal/constants"
	"github.com/kozaktomas/selfie-finder/internal/engine"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <event-id> <path> [path...]",
	Short: "Index event photos from disk",
	Long: `Upload photos from files or folders into an event and index their faces.

Folders are read non-recursively unless -r is given. Photos without a
detectable face are not kept, the same as uploads through the web server.

Example:
  selfie-finder ingest wedding-2026 /path/to/photos
  selfie-finder ingest -r wedding-2026 /path/to/folder1 /path/to/folder2`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolP("recursive", "r", false, "Search for photos recursively in subdirectories")
	ingestCmd.Flags().Int("batch", constants.DefaultIngestBatch, "Photos per batch")
}

// isImageFile checks if a file has an extension the decoder understands
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

// collectImages expands paths into image files. Plain file arguments are
// taken as given.
func collectImages(paths []string, recursive bool) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		if recursive {
			err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isImageFile(d.Name()) {
					files = append(files, p)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk %s: %w", path, err)
			}
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImageFile(entry.Name()) {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	}
	return files, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	eventID := args[0]
	recursive := mustGetBool(cmd, "recursive")
	batchSize := mustGetInt(cmd, "batch")
	if batchSize <= 0 {
		batchSize = constants.DefaultIngestBatch
	}

	files, err := collectImages(args[1:], recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No photos found")
		return nil
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	if !b.engine.Ready() {
		fmt.Println("Warning: face recognition is unavailable, photos are stored without encodings")
	}
	fmt.Printf("Found %d photos for event %s\n\n", len(files), eventID)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Indexing faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var kept, pending, encodings int
	var failed []engine.FileResult

	for start := 0; start < len(files); start += batchSize {
		end := min(start+batchSize, len(files))

		uploads := make([]engine.Upload, 0, end-start)
		for _, path := range files[start:end] {
			data, err := os.ReadFile(path)
			if err != nil {
				failed = append(failed, engine.FileResult{Filename: path, Error: err.Error()})
				bar.Add(1)
				continue
			}
			uploads = append(uploads, engine.Upload{Filename: filepath.Base(path), Data: data})
		}

		res, err := b.engine.IngestBatch(ctx, eventID, uploads)
		if err != nil {
			bar.Finish()
			return fmt.Errorf("failed to ingest photos: %w", err)
		}
		kept += res.PhotosProcessed
		pending += res.Pending
		for _, f := range res.Files {
			encodings += f.EncodingsStored
			if f.Error != "" {
				failed = append(failed, f)
			}
		}
		bar.Add(len(uploads))
	}
	bar.Finish()

	fmt.Printf("\n\nPhotos kept: %d (%d encodings)\n", kept, encodings)
	if pending > 0 {
		fmt.Printf("Photos pending reindex: %d\n", pending)
	}
	fmt.Printf("Photos skipped: %d\n", len(files)-kept-pending)
	for _, f := range failed {
		fmt.Printf("  %s: %s\n", f.Filename, f.Error)
	}
	return nil
}
