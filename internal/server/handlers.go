package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xtxerr/gemrate/internal/dataset"
	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/logging"
	"github.com/xtxerr/gemrate/internal/types"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string           `json:"status"`
	Cycles   int64            `json:"cycles"`
	Datasets []dataset.Health `json:"datasets"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// handleChart serves GET /gem_chart. The type parameter defaults to
// gem_to_gold.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("type")
	if name == "" {
		name = types.KindGemToGold.String()
	}

	d, err := s.reg.Lookup(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	chart, err := s.chart(r.Context(), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// chart renders d, sharing the result with concurrent callers. The shared
// render outlives any single caller; the fetch timeout still bounds it.
func (s *Server) chart(ctx context.Context, d *dataset.Dataset) (dataset.Chart, error) {
	renderCtx := context.WithoutCancel(ctx)
	ch := s.charts.DoChan(d.Kind().String(), func() (any, error) {
		return d.Chart(renderCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logging.WithContext(ctx).Debug("shared chart render", "kind", d.Kind())
		}
		return res.Val.(dataset.Chart), nil
	}
}

// handleSeries serves GET /series/{kind}/{series}. An optional limit
// parameter keeps only the newest points.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	d, err := s.reg.Lookup(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := types.ParseSeriesName(r.PathValue("series"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(w, r, errors.NewInvalidValue("limit", v, "must be a non-negative integer"))
			return
		}
	}

	pts, err := d.Series(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit > 0 && len(pts) > limit {
		pts = pts[len(pts)-limit:]
	}
	writeJSON(w, http.StatusOK, pts)
}

// handleSummary serves GET /summary/{kind}.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	d, err := s.reg.Lookup(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sum, err := d.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleHealth serves GET /health. It never fetches.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Cycles:   s.reg.Cycles(),
		Datasets: s.reg.Health(),
	}
	for _, h := range resp.Datasets {
		if h.LastError != "" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)

	l := logging.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		l.Warn("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		l.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Status: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("write response", "error", err)
	}
}
