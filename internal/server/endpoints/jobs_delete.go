package endpoints

import (
	"errors"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/vision-ocr/vppe/internal/api"
	"github.com/vision-ocr/vppe/internal/jobs"
	"github.com/vision-ocr/vppe/internal/svcctx"
)

// DeleteJobEndpoint handles DELETE /api/jobs/{id}, removing the job
// and everything it has on disk.
type DeleteJobEndpoint struct{}

var _ api.Endpoint = (*DeleteJobEndpoint)(nil)

func (e *DeleteJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/jobs/{id}", e.handler
}

func (e *DeleteJobEndpoint) RequiresInit() bool { return true }

func (e *DeleteJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	registry := svcctx.RegistryFrom(r.Context())
	hub := svcctx.HubFrom(r.Context())
	if registry == nil || hub == nil {
		writeError(w, http.StatusServiceUnavailable, "server not fully initialized")
		return
	}

	// Holding the run lock guarantees no pipeline is mid-flight while
	// the directory disappears.
	if err := registry.AcquireRun(id); err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, jobs.ErrConflict):
			writeError(w, http.StatusConflict, "job is still running")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	job, err := registry.Get(id)
	if err != nil {
		registry.ReleaseRun(id)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := os.RemoveAll(job.Dir(registry.DataDir())); err != nil {
		registry.ReleaseRun(id)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	registry.Delete(id)
	hub.Remove(id)

	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			return client.Delete(cmd.Context(), "/api/jobs/"+args[0])
		},
	}
}
