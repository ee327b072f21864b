package scoring

import (
	"fmt"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
)

// Weights is a strategy's factor weight vector. Each configured vector sums
// to 1.0; exclusion of absent sub-scores renormalizes at scoring time.
type Weights struct {
	Value    float64 `json:"value"`
	Quality  float64 `json:"quality"`
	Risk     float64 `json:"risk"`
	Growth   float64 `json:"growth"`
	Momentum float64 `json:"momentum"`
}

// Named strategy configurations. An unknown name is a configuration error,
// never a silent fallback.
var strategies = map[string]Weights{
	"value":     {Value: 0.40, Quality: 0.30, Risk: 0.15, Growth: 0.10, Momentum: 0.05},
	"growth":    {Value: 0.10, Quality: 0.20, Risk: 0.10, Growth: 0.40, Momentum: 0.20},
	"quality":   {Value: 0.20, Quality: 0.40, Risk: 0.20, Growth: 0.10, Momentum: 0.10},
	"balanced":  {Value: 0.25, Quality: 0.25, Risk: 0.20, Growth: 0.15, Momentum: 0.15},
	"defensive": {Value: 0.20, Quality: 0.30, Risk: 0.35, Growth: 0.05, Momentum: 0.10},
}

// StrategyWeights resolves a strategy name to its weight vector
func StrategyWeights(name string) (Weights, error) {
	w, ok := strategies[name]
	if !ok {
		return Weights{}, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, name)
	}
	return w, nil
}

// StrategyNames lists the configured strategies
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	return names
}
