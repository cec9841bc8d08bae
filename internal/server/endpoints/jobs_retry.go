package endpoints

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vision-ocr/vppe/internal/api"
	"github.com/vision-ocr/vppe/internal/jobs"
	"github.com/vision-ocr/vppe/internal/svcctx"
)

// RetryJobResponse reports which pages a retry will re-process.
type RetryJobResponse struct {
	JobID         string `json:"job_id"`
	RetryingPages []int  `json:"retrying_pages"`
}

// RetryJobEndpoint handles POST /api/jobs/{id}/retry.
type RetryJobEndpoint struct{}

var _ api.Endpoint = (*RetryJobEndpoint)(nil)

func (e *RetryJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{id}/retry", e.handler
}

func (e *RetryJobEndpoint) RequiresInit() bool { return true }

func (e *RetryJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	runner := svcctx.RunnerFrom(r.Context())
	if runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline runner not initialized")
		return
	}

	// The retried pipeline outlives this request; detach it from the
	// request context.
	pages, err := runner.Retry(context.Background(), id)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, jobs.ErrConflict):
			writeError(w, http.StatusConflict, "job is still running")
		case errors.Is(err, jobs.ErrSourceGone):
			writeError(w, http.StatusGone, "source PDF has expired; upload again")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, RetryJobResponse{JobID: id, RetryingPages: pages})
}

func (e *RetryJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-process a job's failed pages",
		Long: `Re-run OCR for every failed page of a finished job and rebuild
the EPUB. Pages that already succeeded are not re-processed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RetryJobResponse
			if err := client.Post(cmd.Context(), "/api/jobs/"+args[0]+"/retry", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
