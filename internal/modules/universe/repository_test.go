package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/database"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/logger"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewRepository(db.Conn(), logger.Nop())
}

func TestAddAndGet(t *testing.T) {
	r := testRepo(t)

	require.NoError(t, r.Add(Entry{Ticker: " aapl ", Name: "Apple", Sector: "Technology"}))

	entry, err := r.Get("AAPL")
	require.NoError(t, err)
	assert.Equal(t, domain.Ticker("AAPL"), entry.Ticker)
	assert.Equal(t, "Apple", entry.Name)
	assert.True(t, entry.Active)
}

func TestGet_NotFound(t *testing.T) {
	r := testRepo(t)
	_, err := r.Get("NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdd_ReactivatesExisting(t *testing.T) {
	r := testRepo(t)

	require.NoError(t, r.Add(Entry{Ticker: "MSFT", Name: "Microsoft", Sector: "Technology"}))
	require.NoError(t, r.Deactivate("MSFT"))

	entry, err := r.Get("MSFT")
	require.NoError(t, err)
	require.False(t, entry.Active)

	require.NoError(t, r.Add(Entry{Ticker: "MSFT", Name: "Microsoft", Sector: "Technology"}))
	entry, err = r.Get("MSFT")
	require.NoError(t, err)
	assert.True(t, entry.Active)
}

func TestDeactivate_Unknown(t *testing.T) {
	r := testRepo(t)
	assert.ErrorIs(t, r.Deactivate("GHOST"), domain.ErrNotFound)
}

func TestActiveTickers_SortedAndFiltered(t *testing.T) {
	r := testRepo(t)

	require.NoError(t, r.Add(Entry{Ticker: "MSFT"}))
	require.NoError(t, r.Add(Entry{Ticker: "AAPL"}))
	require.NoError(t, r.Add(Entry{Ticker: "GOOG"}))
	require.NoError(t, r.Deactivate("GOOG"))

	tickers, err := r.ActiveTickers()
	require.NoError(t, err)
	assert.Equal(t, []domain.Ticker{"AAPL", "MSFT"}, tickers)
}

func TestAll_IncludesInactive(t *testing.T) {
	r := testRepo(t)

	require.NoError(t, r.Add(Entry{Ticker: "AAPL"}))
	require.NoError(t, r.Add(Entry{Ticker: "XOM", Sector: "Energy"}))
	require.NoError(t, r.Deactivate("XOM"))

	entries, err := r.All()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Active)
	assert.False(t, entries[1].Active)
}
