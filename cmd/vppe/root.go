package main

import (
	"github.com/spf13/cobra"

	"github.com/vision-ocr/vppe/internal/api"
	"github.com/vision-ocr/vppe/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "vppe",
	Short: "Scanned-PDF to EPUB conversion with vision-model OCR",
	Long: `vppe converts scanned PDFs into EPUB 3 books by running every page
through a vision language model served by Ollama.

The pipeline includes:
  - Page rendering from PDF to JPEG at configurable DPI
  - OCR via an Ollama vision model with per-page retry
  - Live progress streaming over Server-Sent Events
  - EPUB assembly with RTL support for Persian and Arabic`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.vppe/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "vppe home directory (default: ~/.vppe)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
