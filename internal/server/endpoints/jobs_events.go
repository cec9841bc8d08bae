package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vision-ocr/vppe/internal/api"
	"github.com/vision-ocr/vppe/internal/events"
	"github.com/vision-ocr/vppe/internal/jobs"
	"github.com/vision-ocr/vppe/internal/pipeline"
	"github.com/vision-ocr/vppe/internal/svcctx"
)

// pingInterval is how long the stream may stay silent before a
// keepalive comment is sent.
const pingInterval = 30 * time.Second

// JobEventsEndpoint handles GET /api/jobs/{id}/events as an SSE stream.
type JobEventsEndpoint struct{}

var _ api.Endpoint = (*JobEventsEndpoint)(nil)

func (e *JobEventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}/events", e.handler
}

func (e *JobEventsEndpoint) RequiresInit() bool { return true }

func (e *JobEventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	registry := svcctx.RegistryFrom(r.Context())
	hub := svcctx.HubFrom(r.Context())
	if registry == nil || hub == nil {
		writeError(w, http.StatusServiceUnavailable, "server not fully initialized")
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var afterID int64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		afterID, _ = strconv.ParseInt(v, 10, 64)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bus := hub.GetOrCreate(id)
	replay, live, cancel := bus.Subscribe(afterID)
	defer cancel()

	terminal := false
	for _, ev := range replay {
		fmt.Fprint(w, ev.Encode())
		if isTerminalEvent(ev) {
			terminal = true
		}
	}
	flusher.Flush()
	if terminal {
		return
	}

	// A job that finished in a previous process has a fresh, silent
	// bus; there is nothing more to stream.
	if job.Status.Terminal() && bus.LastID() == afterID {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, open := <-live:
			if !open {
				// Bus closed (or this subscriber was evicted as too
				// slow); the client reconnects with Last-Event-ID.
				return
			}
			fmt.Fprint(w, ev.Encode())
			flusher.Flush()
			ping.Reset(pingInterval)
			if isTerminalEvent(ev) {
				return
			}
		case <-ping.C:
			fmt.Fprint(w, "event: ping\ndata:\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func isTerminalEvent(ev events.Event) bool {
	return ev.Name == pipeline.EventJobCompleted || ev.Name == pipeline.EventJobFailed
}

func (e *JobEventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "events <id>",
		Short: "Stream a job's progress events",
		Long: `Stream server-sent events for a job until it reaches a terminal
state. Prints the raw SSE stream to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := getServerURL() + "/api/jobs/" + args[0] + "/events"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("server error (%d): %s", resp.StatusCode, body)
			}
			_, err = io.Copy(os.Stdout, resp.Body)
			return err
		},
	}
}
