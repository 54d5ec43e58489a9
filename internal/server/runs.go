package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/case-forecast/internal/model"
	"github.com/sells-group/case-forecast/internal/store"
)

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeMessage(w, http.StatusNotFound, "run history is disabled")
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:     model.RunStatus(q.Get("status")),
		SourceKind: model.SourceKind(q.Get("source")),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeMessage(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeMessage(w, http.StatusNotFound, "run history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	phases, err := s.runs.ListPhases(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if phases == nil {
		phases = []model.RunPhase{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "phases": phases})
}
