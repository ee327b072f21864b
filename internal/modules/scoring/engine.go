// Package scoring converts raw per-ticker fundamentals into a normalized
// five-factor composite. Absent input fields are excluded and the remaining
// weights renormalized; a sub-score goes absent only when every one of its
// inputs is missing.
package scoring

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/valuation"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/formulas"
)

// FactorScore is the scoring result for one ticker. Sub-scores are nil when
// all of their inputs were absent. Composite is the weighted mean of present
// sub-scores, in [0,100]. AppliedWeights are the strategy weights after
// renormalization over the present sub-scores (they sum to 1).
type FactorScore struct {
	Ticker   domain.Ticker `json:"ticker"`
	Strategy string        `json:"strategy"`

	Value    *float64 `json:"value,omitempty"`
	Quality  *float64 `json:"quality,omitempty"`
	Risk     *float64 `json:"risk,omitempty"`
	Growth   *float64 `json:"growth,omitempty"`
	Momentum *float64 `json:"momentum,omitempty"`

	Composite      float64            `json:"composite"`
	AppliedWeights map[string]float64 `json:"applied_weights"`
	Components     map[string]float64 `json:"components"`

	// Context carried through for selection and sizing
	Sector string   `json:"sector"`
	Beta   *float64 `json:"beta,omitempty"`
	Price  *float64 `json:"price,omitempty"`
}

// Engine scores fundamentals snapshots. It is stateless apart from its
// logger; scoring is a pure function of its inputs.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a scoring engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "scoring").Logger()}
}

// Score computes the five sub-scores and the strategy-weighted composite.
// The valuation sub-factor comes from the DCF engine; an invalid DCF only
// drops that component, per the absence rule.
func (e *Engine) Score(raw domain.RawFundamentals, strategy string) (FactorScore, error) {
	weights, err := StrategyWeights(strategy)
	if err != nil {
		return FactorScore{}, err
	}

	var dcfUpside *float64
	dcf, err := valuation.Compute(valuation.InputsFromRaw(raw), valuation.Options{})
	switch {
	case err == nil && raw.Price != nil && *raw.Price > 0:
		u := (dcf.IntrinsicValue - *raw.Price) / *raw.Price
		dcfUpside = &u
	case err != nil && !errors.Is(err, domain.ErrInvalidAssumption):
		return FactorScore{}, err
	default:
		e.log.Debug().Str("ticker", string(raw.Ticker)).Msg("Valuation sub-factor excluded")
	}

	score := FactorScore{
		Ticker:     raw.Ticker,
		Strategy:   strategy,
		Sector:     raw.Sector,
		Beta:       raw.Beta,
		Price:      raw.Price,
		Components: make(map[string]float64),
	}

	score.Value = e.collect(&score, "value", valueComponents(raw, dcfUpside))
	score.Quality = e.collect(&score, "quality", qualityComponents(raw))
	score.Risk = e.collect(&score, "risk", riskComponents(raw))
	score.Growth = e.collect(&score, "growth", growthComponents(raw))
	score.Momentum = e.collect(&score, "momentum", momentumComponents(raw))

	score.Composite, score.AppliedWeights = composite(score, weights)
	return score, nil
}

// component is one scored input field inside a sub-score
type component struct {
	name   string
	weight float64
	score  *float64 // nil when the input field is absent
}

// collect renormalizes a sub-score over its present components. All absent
// means the sub-score itself is absent.
func (e *Engine) collect(fs *FactorScore, factor string, comps []component) *float64 {
	var values, weights []float64
	for _, c := range comps {
		if c.score == nil {
			continue
		}
		fs.Components[factor+"."+c.name] = *c.score
		values = append(values, *c.score)
		weights = append(weights, c.weight)
	}
	if len(values) == 0 {
		return nil
	}
	s := formulas.WeightedMean(values, weights)
	return &s
}

// composite applies the strategy weight vector over present sub-scores,
// renormalized so applied weights still sum to 1
func composite(fs FactorScore, w Weights) (float64, map[string]float64) {
	type entry struct {
		name   string
		weight float64
		score  *float64
	}
	entries := []entry{
		{"value", w.Value, fs.Value},
		{"quality", w.Quality, fs.Quality},
		{"risk", w.Risk, fs.Risk},
		{"growth", w.Growth, fs.Growth},
		{"momentum", w.Momentum, fs.Momentum},
	}

	wsum := 0.0
	for _, en := range entries {
		if en.score != nil {
			wsum += en.weight
		}
	}
	if wsum == 0 {
		return 0, map[string]float64{}
	}

	applied := make(map[string]float64, len(entries))
	var values, weights []float64
	for _, en := range entries {
		if en.score == nil {
			continue
		}
		applied[en.name] = en.weight / wsum
		values = append(values, *en.score)
		weights = append(weights, en.weight)
	}
	return formulas.WeightedMean(values, weights), applied
}
