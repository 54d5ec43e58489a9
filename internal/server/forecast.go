package server

import (
	"bytes"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/model"
	"github.com/sells-group/case-forecast/internal/pipeline"
	"github.com/sells-group/case-forecast/internal/report"
)

type forecastRequest struct {
	HorizonWeeks int                `json:"horizon_weeks" validate:"required,min=1"`
	Factors      []string           `json:"factors,omitempty" validate:"omitempty,unique,dive,required"`
	FutureMode   string             `json:"future_mode,omitempty" validate:"omitempty,oneof=mean last manual"`
	FutureValues map[string]float64 `json:"future_values,omitempty"`
}

func (s *Server) runForecast(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var req forecastRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := s.pipeline.Forecast(r.Context(), sess.Dataset, pipeline.Request{
		HorizonWeeks: req.HorizonWeeks,
		Factors:      req.Factors,
		FutureMode:   model.FutureMode(req.FutureMode),
		FutureValues: req.FutureValues,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	sess.Result = res
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		// The forecast is still returned; only the dashboard loses it.
		zap.L().Warn("server: save session result", zap.String("session_id", sess.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) lastResult(w http.ResponseWriter, r *http.Request) (*model.Result, bool) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return nil, false
	}
	if sess.Result == nil {
		writeMessage(w, http.StatusNotFound, "session has no forecast yet")
		return nil, false
	}
	return sess.Result, true
}

// getReport renders the last result as ?format=table|json|yaml.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := s.lastResult(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, res, format); err != nil {
		writeError(w, r, err)
		return
	}
	switch format {
	case report.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case report.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lastResult(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.RenderDashboard(&buf, res); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
