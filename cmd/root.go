package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "face-logger",
	Short: "Face recognition attendance logger",
	Long: `Face Logger recognizes registered people in a webcam feed and writes
an append-only attendance log (logs.csv).

People are registered by capturing face embeddings, stored as one .npy file
per sample under faces/<name>/. Recognized people are logged at most once per
cooldown window; unknown faces are logged on every frame.`,
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
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides FACE_LOGGER_CONFIG)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if configFile != "" {
		os.Setenv("FACE_LOGGER_CONFIG", configFile)
	}
}
