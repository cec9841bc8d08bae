package main

import (
	"github.com/spf13/cobra"

	"github.com/vision-ocr/vppe/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running vppe server via HTTP.

These commands require a running server (vppe serve).
Use --server to specify a custom server URL.

Examples:
  vppe api health                     # Check server health
  vppe api jobs create book.pdf       # Upload a PDF for conversion
  vppe api jobs events <id>           # Stream conversion progress
  vppe api jobs result <id> -o b.epub # Download the finished EPUB`,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job management commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))

	// Jobs as subcommand group
	jobsCmd.AddCommand((&endpoints.CreateJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.ListJobsEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.GetJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.JobEventsEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.JobResultEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.RetryJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.DeleteJobEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(apiCmd)
}
