// Package api serves recommendations over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/ecm-cli/internal/batch"
	"github.com/sells-group/ecm-cli/internal/lookup"
	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/monitoring"
	"github.com/sells-group/ecm-cli/internal/store"
)

const defaultLookbackHours = 24

// Options configures the router.
type Options struct {
	RateLimit       float64
	Burst           int
	AllowedOrigins  []string
	UnboundedBudget float64
}

// Server holds handler dependencies. Store may be nil, in which case runs
// are neither recorded nor listed.
type Server struct {
	Recommender batch.Recommender
	Tables      *lookup.Tables
	Store       store.Store
	Options     Options
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.Options.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		if s.Options.RateLimit > 0 {
			r.Use(rateLimit(rate.NewLimiter(rate.Limit(s.Options.RateLimit), max(s.Options.Burst, 1))))
		}
		r.Post("/recommendations", s.createRecommendation)
		r.Get("/recommendations", s.listRecommendations)
		r.Get("/recommendations/{id}", s.getRecommendation)
		r.Get("/stats", s.stats)
		r.Get("/measures/{id}", s.getMeasure)
	})
	return r
}

// rateLimit rejects requests beyond a shared token bucket.
func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recommendationRequest struct {
	Name         string   `json:"name"`
	BuildingType int      `json:"building_type"`
	Vintage      int      `json:"vintage"`
	ClimateZone  int      `json:"climate_zone"`
	Objective    string   `json:"objective"`
	Budget       *float64 `json:"budget"`
	PaybackYears *float64 `json:"payback_years"`
}

func (req recommendationRequest) query(unbounded float64) (model.Query, error) {
	obj, err := model.ParseObjective(req.Objective)
	if err != nil {
		return model.Query{}, err
	}
	q := model.Query{
		Name:         req.Name,
		Context:      model.Context{BuildingType: req.BuildingType, Vintage: req.Vintage, ClimateZone: req.ClimateZone},
		Objective:    obj,
		Budget:       unbounded,
		PaybackYears: unbounded,
	}
	if req.Budget != nil {
		q.Budget = *req.Budget
	}
	if req.PaybackYears != nil {
		q.PaybackYears = *req.PaybackYears
	}
	return q, nil
}

func (s *Server) createRecommendation(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	q, err := req.query(s.Options.UnboundedBudget)
	if err != nil {
		writeError(w, err, "")
		return
	}

	var recorder batch.Recorder
	if s.Store != nil {
		recorder = s.Store
	}
	run, err := batch.Execute(r.Context(), s.Recommender, recorder, q)
	if err != nil {
		var runID string
		if run != nil {
			runID = run.ID
		}
		writeError(w, err, runID)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRecommendations(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "run storage is not configured"})
		return
	}

	f := store.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"building_type", &f.BuildingType},
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	} {
		v := r.URL.Query().Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + p.name})
			return
		}
		*p.dst = n
	}

	runs, err := s.Store.ListRuns(r.Context(), f)
	if err != nil {
		writeError(w, err, "")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRecommendation(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "run storage is not configured"})
		return
	}
	run, err := s.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "run storage is not configured"})
		return
	}
	hours := defaultLookbackHours
	if v := r.URL.Query().Get("lookback_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid lookback_hours"})
			return
		}
		hours = n
	}
	snap, err := monitoring.NewCollector(s.Store).Collect(r.Context(), hours)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type measureResponse struct {
	ID                      int   `json:"id"`
	CompatibleBuildingTypes []int `json:"compatible_building_types"`
	ConflictsWith           []int `json:"conflicts_with"`
	Compatible              *bool `json:"compatible,omitempty"`
}

func (s *Server) getMeasure(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid measure id"})
		return
	}

	compat, err := s.Tables.Compatibility(id)
	if err != nil {
		writeError(w, eris.Wrap(err, "api: measure"), "")
		return
	}
	conflicts, err := s.Tables.ConflictsWith(id)
	if err != nil {
		writeError(w, eris.Wrap(err, "api: measure"), "")
		return
	}

	resp := measureResponse{ID: id, CompatibleBuildingTypes: []int{}, ConflictsWith: conflicts}
	if resp.ConflictsWith == nil {
		resp.ConflictsWith = []int{}
	}
	for b, ok := range compat {
		if ok {
			resp.CompatibleBuildingTypes = append(resp.CompatibleBuildingTypes, model.ToID(b))
		}
	}

	if v := r.URL.Query().Get("building_type"); v != "" {
		bt, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid building_type"})
			return
		}
		ok, err := s.Tables.Compatible(id, bt)
		if err != nil {
			writeError(w, err, "")
			return
		}
		resp.Compatible = &ok
	}
	writeJSON(w, http.StatusOK, resp)
}
