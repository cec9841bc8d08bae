package endpoints

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vision-ocr/vppe/internal/api"
	"github.com/vision-ocr/vppe/internal/jobs"
	"github.com/vision-ocr/vppe/internal/render"
	"github.com/vision-ocr/vppe/internal/svcctx"
)

// CreateJobResponse is returned after a successful upload.
type CreateJobResponse struct {
	JobID      string `json:"job_id"`
	TotalPages int    `json:"total_pages"`
	Status     string `json:"status"`
}

// validLanguages are the supported OCR language codes.
var validLanguages = map[string]bool{"fa": true, "ar": true, "en": true}

// CreateJobEndpoint handles POST /api/jobs with a multipart PDF upload.
type CreateJobEndpoint struct{}

var _ api.Endpoint = (*CreateJobEndpoint)(nil)

func (e *CreateJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs", e.handler
}

func (e *CreateJobEndpoint) RequiresInit() bool { return true }

func (e *CreateJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form with 500MB max memory
	const maxMemory = 500 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", header.Filename))
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "fa"
	}
	if !validLanguages[language] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported language %q (expected fa, ar, or en)", language))
		return
	}

	registry := svcctx.RegistryFrom(r.Context())
	runner := svcctx.RunnerFrom(r.Context())
	cm := svcctx.ConfigFrom(r.Context())
	logger := svcctx.LoggerFrom(r.Context())
	if registry == nil || runner == nil || cm == nil {
		writeError(w, http.StatusServiceUnavailable, "server not fully initialized")
		return
	}

	prompt := r.FormValue("ocr_prompt")
	if prompt == "" {
		prompt = cm.Get().DefaultOCRPrompt
	}

	// Stage the upload next to the job directories so the final rename
	// stays on one filesystem.
	if err := os.MkdirAll(registry.DataDir(), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to prepare data dir: %v", err))
		return
	}
	tmp, err := os.CreateTemp(registry.DataDir(), "upload-*.pdf")
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to stage upload: %v", err))
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save upload: %v", err))
		return
	}
	tmp.Close()

	totalPages, err := render.PageCount(tmpPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid or corrupted PDF: %v", err))
		return
	}

	job := jobs.New(header.Filename, language, prompt)
	job.InitPages(totalPages)
	if err := registry.Create(job); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create job: %v", err))
		return
	}

	if err := os.Rename(tmpPath, job.PDFPath(registry.DataDir())); err != nil {
		registry.Delete(job.ID)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store pdf: %v", err))
		return
	}

	// The pipeline outlives this request; detach it from the request
	// context.
	if err := runner.Start(context.Background(), job.ID, nil); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to start pipeline: %v", err))
		return
	}

	if logger != nil {
		logger.Info("job created", "job_id", job.ID, "filename", header.Filename, "total_pages", totalPages, "language", language)
	}

	writeJSON(w, http.StatusOK, CreateJobResponse{
		JobID:      job.ID,
		TotalPages: totalPages,
		Status:     string(jobs.StatusPending),
	})
}

func (e *CreateJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	var language, prompt string
	cmd := &cobra.Command{
		Use:   "create <file.pdf>",
		Short: "Upload a PDF and start conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CreateJobResponse
			fields := map[string]string{
				"language":   language,
				"ocr_prompt": prompt,
			}
			if err := client.PostFile(cmd.Context(), "/api/jobs", "file", args[0], fields, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "fa", "Language of the book (fa, ar, en)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Custom OCR prompt")
	return cmd
}
