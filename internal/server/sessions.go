package server

import (
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/ingest"
	"github.com/sells-group/case-forecast/internal/model"
	"github.com/sells-group/case-forecast/internal/session"
)

type createSessionRequest struct {
	Source      string  `json:"source" validate:"required,oneof=sheet sample"`
	URL         string  `json:"url,omitempty" validate:"omitempty,url"`
	Format      string  `json:"format,omitempty" validate:"omitempty,oneof=csv xlsx"`
	Weeks       int     `json:"weeks,omitempty" validate:"omitempty,min=8,max=520"`
	Seed        *uint64 `json:"seed,omitempty"`
	WithFactors bool    `json:"with_factors,omitempty"`
}

// sessionSummary is what the front end needs to offer a forecast form.
type sessionSummary struct {
	ID          string              `json:"id"`
	Source      model.SourceInfo    `json:"source"`
	Points      int                 `json:"points"`
	DroppedRows int                 `json:"dropped_rows"`
	FirstDate   time.Time           `json:"first_date"`
	LastDate    time.Time           `json:"last_date"`
	Factors     []string            `json:"factors"`
	MaxHorizon  int                 `json:"max_horizon"`
	Quality     model.QualityReport `json:"quality"`
	HasResult   bool                `json:"has_result"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (s *Server) summarize(sess *session.Session) sessionSummary {
	ds := sess.Dataset
	out := sessionSummary{
		ID:          sess.ID,
		Source:      ds.Source,
		Points:      len(ds.Series),
		DroppedRows: ds.DroppedRows,
		Factors:     ds.Series.FactorNames(),
		MaxHorizon:  s.pipeline.Adapter().MaxHorizon(len(ds.Series)),
		Quality:     ds.Quality,
		HasResult:   sess.Result != nil,
		UpdatedAt:   sess.UpdatedAt,
	}
	if out.Factors == nil {
		out.Factors = []string{}
	}
	if n := len(ds.Series); n > 0 {
		out.FirstDate = ds.Series[0].Date
		out.LastDate = ds.Series[n-1].Date
	}
	return out
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	src, ok := s.sourceFor(w, r)
	if !ok {
		return
	}

	ds, err := s.pipeline.Load(r.Context(), src)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Create(r.Context(), ds)
	if err != nil {
		writeError(w, r, err)
		return
	}

	zap.L().Info("server: session created",
		zap.String("session_id", sess.ID),
		zap.String("kind", string(ds.Source.Kind)),
		zap.Int("points", len(ds.Series)),
	)
	writeJSON(w, http.StatusCreated, s.summarize(sess))
}

// sourceFor picks the ingestion path: a multipart "file" upload, or a JSON
// body naming the hosted sheet or the sample generator.
func (s *Server) sourceFor(w http.ResponseWriter, r *http.Request) (ingest.Source, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return s.uploadSource(w, r)
	}

	var req createSessionRequest
	if !s.decodeAndValidate(w, r, &req) {
		return nil, false
	}

	switch req.Source {
	case string(model.SourceSheet):
		url := req.URL
		if url == "" {
			url = s.cfg.Source.SheetURL
		}
		format := ingest.Format(req.Format)
		if format == "" {
			format = ingest.Format(s.cfg.Source.Format)
		}
		return ingest.NewSheetSource(s.fetcher, url, format), true
	default:
		src := ingest.SampleSource{
			Weeks:       s.cfg.Sample.Weeks,
			Seed:        s.cfg.Sample.Seed,
			WithFactors: req.WithFactors || s.cfg.Sample.WithFactors,
		}
		if req.Weeks > 0 {
			src.Weeks = req.Weeks
		}
		if req.Seed != nil {
			src.Seed = *req.Seed
		}
		return src, true
	}
}

func (s *Server) uploadSource(w http.ResponseWriter, r *http.Request) (ingest.Source, bool) {
	limit := int64(s.cfg.Server.MaxUploadMB) << 20
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "file is required")
		return nil, false
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "read upload: "+err.Error())
		return nil, false
	}
	return ingest.UploadSource{Name: header.Filename, Data: data}, true
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": s.summarize(sess),
		"series":  sess.Dataset.Series,
		"result":  sess.Result,
	})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// refreshSession re-reads a hosted sheet session when the sheet's ETag
// has changed. The previous forecast is discarded on change.
func (s *Server) refreshSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	info := sess.Dataset.Source
	if info.Kind != model.SourceSheet {
		writeError(w, r, eris.Wrapf(model.ErrInvalidRequest, "server: %s sessions cannot be refreshed", info.Kind))
		return
	}

	src := ingest.NewSheetSource(s.fetcher, info.Location, ingest.Format(s.cfg.Source.Format)).WithETag(info.ETag)
	ds, changed, err := s.pipeline.Refresh(r.Context(), src)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if changed {
		sess.Dataset = ds
		sess.Result = nil
		if err := s.sessions.Save(r.Context(), sess); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"session": s.summarize(sess),
	})
}
