package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/portfolio"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/scoring"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/universe"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "equity-research-agent",
	})
}

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	ids, err := s.portfolios.ListIDs()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"portfolios": ids})
}

// createPortfolioRequest carries the portfolio parameters; zero-valued
// constraint fields fall back to conservative defaults
type createPortfolioRequest struct {
	Name               string  `json:"name"`
	Strategy           string  `json:"strategy"`
	Cash               float64 `json:"cash"`
	MinPositionPct     float64 `json:"min_position_pct"`
	MaxPositionPct     float64 `json:"max_position_pct"`
	MaxSectorPct       float64 `json:"max_sector_pct"`
	MaxMonthlyTurnover int     `json:"max_monthly_turnover"`
	TargetHoldings     int     `json:"target_holdings"`
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Cash <= 0 {
		s.writeError(w, http.StatusBadRequest, "cash must be positive")
		return
	}
	if req.Strategy == "" {
		req.Strategy = s.app.DefaultStrategy
	}
	if _, err := scoring.StrategyWeights(req.Strategy); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MinPositionPct <= 0 {
		req.MinPositionPct = 0.02
	}
	if req.MaxPositionPct <= 0 {
		req.MaxPositionPct = 0.10
	}
	if req.MaxSectorPct <= 0 {
		req.MaxSectorPct = 0.30
	}
	if req.MaxMonthlyTurnover <= 0 {
		req.MaxMonthlyTurnover = 10
	}
	if req.TargetHoldings <= 0 {
		req.TargetHoldings = 20
	}

	p := &portfolio.Portfolio{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Strategy: req.Strategy,
		Cash:     req.Cash,
		Constraints: portfolio.Constraints{
			MinPositionPct:     req.MinPositionPct,
			MaxPositionPct:     req.MaxPositionPct,
			MaxSectorPct:       req.MaxSectorPct,
			MaxMonthlyTurnover: req.MaxMonthlyTurnover,
			TargetHoldings:     req.TargetHoldings,
		},
	}
	if err := s.portfolios.Create(p); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": p.ID})
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.portfolios.LoadPortfolio(chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.portfolios.ListSnapshots(chi.URLParam(r, "id"), 0)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snaps})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	res, err := s.research.BuildPortfolio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	res, err := s.research.RunReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListUniverse(w http.ResponseWriter, r *http.Request) {
	entries, err := s.universe.All()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"universe": entries})
}

func (s *Server) handleAddToUniverse(w http.ResponseWriter, r *http.Request) {
	var entry universe.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.universe.Add(entry); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"ticker": string(entry.Ticker)})
}

func (s *Server) handleDeactivateTicker(w http.ResponseWriter, r *http.Request) {
	if err := s.universe.Deactivate(domain.Ticker(chi.URLParam(r, "ticker"))); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.portfolios.ScoreHistory(domain.Ticker(chi.URLParam(r, "ticker")), 0)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"scores": records})
}

// writeServiceError maps domain errors onto HTTP status codes
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnknownStrategy),
		errors.Is(err, domain.ErrConstraintUnsatisfiable),
		domain.IsInvariantViolation(err):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrPersistenceConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("Request failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
