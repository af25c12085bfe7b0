package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "selfie-finder",
	Short: "Find yourself in event photos with a selfie",
	Long: `Selfie Finder indexes the faces in event photos and lets guests find
the photos they appear in by uploading a selfie.

Photos are processed with a Haar cascade face detector and an OpenFace
embedding network. When the model files cannot be loaded the server still
runs, but ingestion and search report that face recognition is unavailable.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
