package endpoints

import (
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/vision-ocr/vppe/internal/api"
	"github.com/vision-ocr/vppe/internal/jobs"
	"github.com/vision-ocr/vppe/internal/svcctx"
)

// JobResponse is the full job snapshot returned by the API. Counters
// are derived from the page map at response time.
type JobResponse struct {
	JobID          string                   `json:"job_id"`
	Filename       string                   `json:"filename"`
	Language       string                   `json:"language"`
	Status         string                   `json:"status"`
	TotalPages     int                      `json:"total_pages"`
	PagesSucceeded int                      `json:"pages_succeeded"`
	PagesFailed    int                      `json:"pages_failed"`
	PagesCompleted int                      `json:"pages_completed"`
	FailedPages    []int                    `json:"failed_pages"`
	Error          string                   `json:"error,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	StartedAt      *time.Time               `json:"started_at,omitempty"`
	CompletedAt    *time.Time               `json:"completed_at,omitempty"`
	Pages          map[int]*jobs.PageResult `json:"pages"`
}

func jobResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		JobID:          j.ID,
		Filename:       j.PDFFilename,
		Language:       j.Language,
		Status:         string(j.Status),
		TotalPages:     j.TotalPages,
		PagesSucceeded: j.PagesSucceeded(),
		PagesFailed:    j.PagesFailed(),
		PagesCompleted: j.PagesCompleted(),
		FailedPages:    j.FailedPages(),
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		Pages:          j.Pages,
	}
}

// GetJobEndpoint handles GET /api/jobs/{id}.
type GetJobEndpoint struct{}

var _ api.Endpoint = (*GetJobEndpoint)(nil)

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	registry := svcctx.RegistryFrom(r.Context())
	if registry == nil {
		writeError(w, http.StatusServiceUnavailable, "registry not initialized")
		return
	}

	job, err := registry.Get(id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, jobResponse(job))
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a job by ID",
		Long: `Get the full state of a conversion job, including per-page
statuses and derived counters.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobResponse
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
