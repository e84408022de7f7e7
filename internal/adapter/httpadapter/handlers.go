package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/couchcryptid/aquifer-watch-service/internal/analysis"
	"github.com/couchcryptid/aquifer-watch-service/internal/catalog"
	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
)

// Analyzer runs analyses and lists the known sites.
type Analyzer interface {
	Analyze(ctx context.Context, view analysis.View, sourceID string) (analysis.Result, error)
	Sites() ([]catalog.Site, error)
}

type wellDataResponse struct {
	Source string    `json:"source"`
	Dates  []string  `json:"dates"`
	Levels []float64 `json:"levels"`
}

type predictResponse struct {
	Source          string    `json:"source"`
	FutureDates     []string  `json:"future_dates"`
	PredictedLevels []float64 `json:"predicted_levels"`
	Slope           float64   `json:"slope"`
}

type analysisResponse struct {
	Source    string      `json:"source"`
	Condition string      `json:"condition"`
	Band      domain.Band `json:"band"`
	Level     float64     `json:"level"`
	Steps     []string    `json:"steps"`
}

type siteResponse struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Region string      `json:"region,omitempty"`
	Coords *[2]float64 `json:"coords"` // [lat, lon]
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleWellData(w http.ResponseWriter, r *http.Request) {
	res, ok := s.analyze(w, r, analysis.ViewWellData)
	if !ok {
		return
	}

	recent := res.Analysis.Recent
	resp := wellDataResponse{
		Source: res.Site.ID,
		Dates:  make([]string, len(recent)),
		Levels: make([]float64, len(recent)),
	}
	for i, sample := range recent {
		resp.Dates[i] = sample.Date.Format(domain.DateLayout)
		resp.Levels[i] = sample.Level
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	res, ok := s.analyze(w, r, analysis.ViewPredict)
	if !ok {
		return
	}

	points := res.Analysis.Forecast.Points
	resp := predictResponse{
		Source:          res.Site.ID,
		FutureDates:     make([]string, len(points)),
		PredictedLevels: make([]float64, len(points)),
		Slope:           res.Analysis.Forecast.Slope,
	}
	for i, p := range points {
		resp.FutureDates[i] = p.Date.Format(domain.DateLayout)
		resp.PredictedLevels[i] = p.Level
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	res, ok := s.analyze(w, r, analysis.ViewAnalysis)
	if !ok {
		return
	}

	c := res.Analysis.Condition
	writeJSON(w, http.StatusOK, analysisResponse{
		Source:    res.Site.ID,
		Condition: c.Band.Label() + " " + c.Band.Indicator(),
		Band:      c.Band,
		Level:     c.Level,
		Steps:     c.Actions,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	sites, err := s.analyzer.Sites()
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]siteResponse, len(sites))
	for i, site := range sites {
		resp[i] = siteResponse{ID: site.ID, Name: site.Name, Region: site.Region}
		if site.Coords != nil {
			resp[i].Coords = &[2]float64{site.Coords.Lat, site.Coords.Lon}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// analyze runs the analysis for the request's source query parameter and
// writes the error response itself on failure.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request, view analysis.View) (analysis.Result, bool) {
	res, err := s.analyzer.Analyze(r.Context(), view, r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, err)
		return analysis.Result{}, false
	}
	return res, true
}

// writeError maps pipeline failures onto status codes. Internal details stay
// in the logs.
func writeError(w http.ResponseWriter, err error) {
	var unknown *catalog.UnknownSourceError
	var malformed *domain.MalformedSampleError
	switch {
	case errors.As(err, &unknown), errors.Is(err, fs.ErrNotExist):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid source"})
	case errors.Is(err, domain.ErrEmptySeries):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "No samples for source"})
	case errors.As(err, &malformed):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Malformed sample data"})
	case errors.Is(err, analysis.ErrCatalogUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Source catalog not loaded"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
