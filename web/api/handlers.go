package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openevals/benchforge/internal/runstore"
)

// StatusResponse is the API response for overall pipeline status
type StatusResponse struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RunResponse is the API response for a run
type RunResponse struct {
	ID           string         `json:"id"`
	Repo         string         `json:"repo"`
	Status       string         `json:"status"`
	StartedAt    string         `json:"started_at"`
	FinishedAt   *string        `json:"finished_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Steps        []StepResponse `json:"steps,omitempty"`
}

// StepResponse is the API response for one stage of a run
type StepResponse struct {
	Step       string  `json:"step"`
	Status     string  `json:"status"`
	Records    int     `json:"records"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

func runToResponse(run *runstore.Run, steps []runstore.Step) RunResponse {
	resp := RunResponse{
		ID:           run.ID,
		Repo:         run.Repo,
		Status:       run.Status,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
		ErrorMessage: run.ErrorMessage,
	}
	if run.FinishedAt != nil {
		t := run.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}

	for _, st := range steps {
		sr := StepResponse{
			Step:      st.Step,
			Status:    st.Status,
			Records:   st.Records,
			StartedAt: st.StartedAt.Format(time.RFC3339),
		}
		if st.FinishedAt != nil {
			t := st.FinishedAt.Format(time.RFC3339)
			sr.FinishedAt = &t
		}
		resp.Steps = append(resp.Steps, sr)
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		summary, err := s.store.GetSummary()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, StatusResponse{
			Total:     summary.Total,
			Running:   summary.Running,
			Completed: summary.Completed,
			Failed:    summary.Failed,
		})
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		runs, err := s.store.ListRuns(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]RunResponse, 0, len(runs))
		for _, run := range runs {
			resp = append(resp, runToResponse(run, nil))
		}
		writeJSON(w, resp)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, http.StatusBadRequest, "invalid run id")
			return
		}

		run, steps, err := s.store.GetRun(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, runToResponse(run, steps))
	}
}
