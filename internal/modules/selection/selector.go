// Package selection picks a bounded, sector-diversified top-K set from a
// scored candidate pool. The sector check here is count-based; exact weight
// caps are enforced later at validation, once positions are sized.
package selection

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/scoring"
)

// Constraints bound the selection
type Constraints struct {
	MaxSectorPct float64 // decimal in [0,1]
}

// Result is the selection outcome. Chosen is ordered best-first. Rejected
// holds candidates that scored well enough but hit their sector's cap.
type Result struct {
	Chosen            []scoring.FactorScore
	RejectedForSector []domain.Ticker
}

// Selector admits candidates greedily in rank order
type Selector struct {
	log zerolog.Logger
}

// New creates a selector
func New(log zerolog.Logger) *Selector {
	return &Selector{log: log.With().Str("component", "selector").Logger()}
}

// Select picks up to k candidates. Candidates are ranked by composite score
// descending, ties broken by lower beta then ticker order, and admitted only
// while their sector stays under its share of the target count. A pool too
// small to fill k under the caps returns a short list rather than a
// violation.
func (s *Selector) Select(scored []scoring.FactorScore, k int, c Constraints) Result {
	if k <= 0 || len(scored) == 0 {
		return Result{}
	}

	ranked := make([]scoring.FactorScore, len(scored))
	copy(ranked, scored)
	Rank(ranked)

	sectorCap := SectorCap(k, c.MaxSectorPct)
	perSector := make(map[string]int)

	var res Result
	for _, cand := range ranked {
		if len(res.Chosen) >= k {
			break
		}
		if perSector[cand.Sector] >= sectorCap {
			res.RejectedForSector = append(res.RejectedForSector, cand.Ticker)
			s.log.Debug().
				Str("ticker", string(cand.Ticker)).
				Str("sector", cand.Sector).
				Int("sector_cap", sectorCap).
				Msg("Candidate rejected, sector full")
			continue
		}
		perSector[cand.Sector]++
		res.Chosen = append(res.Chosen, cand)
	}

	if len(res.Chosen) < k {
		s.log.Warn().
			Int("requested", k).
			Int("chosen", len(res.Chosen)).
			Msg("Candidate pool exhausted before target count, under-filling")
	}

	return res
}

// Rank sorts candidates best-first: composite descending, then lower beta,
// then ticker lexical order. Fully deterministic.
func Rank(scored []scoring.FactorScore) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		ab, bb := betaOrInf(a.Beta), betaOrInf(b.Beta)
		if ab != bb {
			return ab < bb
		}
		return a.Ticker < b.Ticker
	})
}

// SectorCap converts the sector weight cap into a holding count cap for
// construction time
func SectorCap(k int, maxSectorPct float64) int {
	if maxSectorPct <= 0 || maxSectorPct >= 1 {
		return k
	}
	cap := int(math.Ceil(maxSectorPct * float64(k)))
	if cap < 1 {
		cap = 1
	}
	return cap
}

// betaOrInf treats an unknown beta as riskiest for tie-breaking
func betaOrInf(b *float64) float64 {
	if b == nil {
		return math.Inf(1)
	}
	return *b
}
