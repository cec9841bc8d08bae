package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vision-ocr/vppe/internal/api"
	"github.com/vision-ocr/vppe/internal/jobs"
	"github.com/vision-ocr/vppe/internal/svcctx"
)

// JobResultEndpoint handles GET /api/jobs/{id}/result, serving the
// finished EPUB.
type JobResultEndpoint struct{}

var _ api.Endpoint = (*JobResultEndpoint)(nil)

func (e *JobResultEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}/result", e.handler
}

func (e *JobResultEndpoint) RequiresInit() bool { return true }

func (e *JobResultEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

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

	if job.Status != jobs.StatusCompleted {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("job is %s, not completed", job.Status))
		return
	}

	epubPath := job.EPUBPath(registry.DataDir())
	if _, err := os.Stat(epubPath); err != nil {
		writeError(w, http.StatusNotFound, "epub no longer on disk")
		return
	}

	filename := strings.TrimSuffix(job.PDFFilename, filepath.Ext(job.PDFFilename)) + ".epub"
	w.Header().Set("Content-Type", "application/epub+zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, epubPath)
}

func (e *JobResultEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "result <id>",
		Short: "Download the finished EPUB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = args[0] + ".epub"
			}
			client := api.NewClient(getServerURL())
			n, err := client.Download(cmd.Context(), "/api/jobs/"+args[0]+"/result", out)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s (%d bytes)\n", out, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output path (default <id>.epub)")
	return cmd
}
