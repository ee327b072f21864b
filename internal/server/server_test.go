package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/vmarcondes-nilo/equity-research-agent/internal/config"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/database"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/fetch"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/portfolio"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/research"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/universe"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/logger"
)

type stubProvider struct{}

func (stubProvider) FetchQuote(_ context.Context, tk domain.Ticker) (*domain.Quote, error) {
	return &domain.Quote{
		Price:      domain.Float(100),
		MarketCap:  domain.Float(50e9),
		TrailingPE: domain.Float(15),
		Sector:     "Technology",
	}, nil
}

func (stubProvider) FetchFundamentals(_ context.Context, _ domain.Ticker) (*domain.Fundamentals, error) {
	return &domain.Fundamentals{ProfitMargin: domain.Float(0.2)}, nil
}

func (stubProvider) FetchRatings(_ context.Context, _ domain.Ticker) (*domain.Ratings, error) {
	return &domain.Ratings{}, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	portfolios := portfolio.NewRepository(db.Conn(), logger.Nop())
	uni := universe.NewRepository(db.Conn(), logger.Nop())
	svc := research.NewService(stubProvider{}, nil, portfolios, uni, fetch.Config{BatchSize: 10}, logger.Nop())

	return New(Config{
		Port:       0,
		Log:        logger.Nop(),
		Portfolios: portfolios,
		Universe:   uni,
		Research:   svc,
		App:        &appconfig.Config{DefaultStrategy: "balanced"},
	})
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestCreateAndGetPortfolio(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/portfolios/", `{"name":"Core","cash":50000}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created["id"])

	rec = doRequest(t, s, http.MethodGet, "/api/portfolios/"+created["id"]+"/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var p portfolio.Portfolio
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Core", p.Name)
	assert.Equal(t, "balanced", p.Strategy, "default strategy applied")
	assert.Equal(t, 50000.0, p.Cash)
	assert.Equal(t, 20, p.TargetHoldings, "default constraints applied")
}

func TestCreatePortfolio_Validation(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/portfolios/", `{"name":"X","cash":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/portfolios/", `{"name":"X","cash":100,"strategy":"moonshot"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPortfolio_NotFound(t *testing.T) {
	s := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/portfolios/ghost/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUniverseEndpoints(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/universe/", `{"ticker":"AAPL","name":"Apple","sector":"Technology"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/universe/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AAPL")

	rec = doRequest(t, s, http.MethodDelete, "/api/universe/AAPL", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/universe/GHOST", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/universe/", `{"ticker":"AAPL","sector":"Technology"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/portfolios/", `{"name":"Core","cash":50000}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(t, s, http.MethodPost, "/api/portfolios/"+created["id"]+"/build", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res research.BuildResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Scored)
	assert.Len(t, res.Orders, 1)
}

func TestScoreHistoryEndpoint(t *testing.T) {
	s := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/scores/AAPL", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
