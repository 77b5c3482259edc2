package train

import (
	"fmt"
	"math"

	"github.com/born-ml/nnet/internal/egs"
	"github.com/born-ml/nnet/internal/nnet"
	"gonum.org/v1/gonum/optimize"
)

// ShrinkConfig holds configuration for Shrink.
type ShrinkConfig struct {
	MinLogScale    float64 // Lower bound of each log scale (default: -2)
	MaxLogScale    float64 // Upper bound of each log scale (default: 1)
	MaxEvaluations int     // Objective evaluations allowed (default: 50)
	Workers        int     // Goroutines for objective evaluation (default: NumCPU)
}

func (cfg ShrinkConfig) withDefaults() ShrinkConfig {
	if cfg.MinLogScale == 0 && cfg.MaxLogScale == 0 {
		cfg.MinLogScale, cfg.MaxLogScale = -2, 1
	}
	if cfg.MaxEvaluations <= 0 {
		cfg.MaxEvaluations = 50
	}
	return cfg
}

// ShrinkResult reports what Shrink did.
type ShrinkResult struct {
	Indices []int     // Components that were considered
	Scales  []float64 // Scale applied to each of them, 1 if unchanged
	Before  Stats     // Validation objective before shrinking
	After   Stats     // Validation objective after shrinking
}

// Shrink searches for one scale factor per updatable component that
// maximizes the objective on valid, and applies the scales in place.
//
// The search runs over log scales with the Nelder-Mead method, each
// coordinate clamped to [MinLogScale, MaxLogScale]. The components are
// left untouched unless the best scales found improve the objective.
// MixtureProbComponents are never scaled, since scaling would break their
// sum-to-one columns.
func Shrink(components []nnet.Component, valid []*egs.Example, cfg ShrinkConfig) (ShrinkResult, error) {
	if err := checkExamples(components, valid); err != nil {
		return ShrinkResult{}, err
	}
	cfg = cfg.withDefaults()
	if cfg.MinLogScale > 0 || cfg.MaxLogScale < 0 || cfg.MinLogScale >= cfg.MaxLogScale {
		return ShrinkResult{}, fmt.Errorf("shrink: log-scale range [%g, %g] must contain 0",
			cfg.MinLogScale, cfg.MaxLogScale)
	}
	ocfg := Config{Workers: cfg.Workers}.withDefaults()

	idx := shrinkable(components)
	before := objective(components, valid, ocfg)
	res := ShrinkResult{Indices: idx, Scales: make([]float64, len(idx)), Before: before, After: before}
	for k := range res.Scales {
		res.Scales[k] = 1
	}
	if len(idx) == 0 || before.Frames == 0 {
		return res, nil
	}

	clamp := func(x []float64) []float64 {
		out := make([]float64, len(x))
		for k, v := range x {
			out[k] = min(max(v, cfg.MinLogScale), cfg.MaxLogScale)
		}
		return out
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			scaled := scaledCopy(components, idx, clamp(x))
			return -objective(scaled, valid, ocfg).Objective
		},
	}
	settings := &optimize.Settings{FuncEvaluations: cfg.MaxEvaluations}
	result, err := optimize.Minimize(problem, make([]float64, len(idx)), settings, &optimize.NelderMead{})
	if err != nil {
		return res, fmt.Errorf("shrink: %w", err)
	}
	if math.IsNaN(result.F) || -result.F <= before.Objective {
		return res, nil
	}

	for k, logScale := range clamp(result.X) {
		res.Scales[k] = math.Exp(logScale)
		components[idx[k]].(nnet.Updatable).Scale(res.Scales[k])
	}
	res.After = Stats{Frames: before.Frames, Objective: -result.F}
	return res, nil
}

// shrinkable returns the indices of the components Shrink may scale.
func shrinkable(components []nnet.Component) []int {
	var idx []int
	for _, i := range updatables(components) {
		if _, ok := components[i].(*nnet.MixtureProbComponent); ok {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

// scaledCopy returns a deep copy of components with components[idx[k]]
// scaled by exp(logScales[k]).
func scaledCopy(components []nnet.Component, idx []int, logScales []float64) []nnet.Component {
	out := make([]nnet.Component, len(components))
	for i, c := range components {
		out[i] = c.Copy()
	}
	for k, i := range idx {
		out[i].(nnet.Updatable).Scale(math.Exp(logScales[k]))
	}
	return out
}
