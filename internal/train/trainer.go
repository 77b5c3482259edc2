package train

import (
	"fmt"
	"math/rand/v2"
	"runtime"

	"github.com/born-ml/nnet/internal/egs"
	"github.com/born-ml/nnet/internal/nnet"
	"github.com/born-ml/nnet/internal/parallel"
	"gonum.org/v1/gonum/mat"
)

// Config holds configuration for the SGD trainer.
type Config struct {
	MinibatchSize int  // Frames per update (default: 256)
	Workers       int  // Goroutines for objective evaluation (default: NumCPU)
	Shuffle       bool // Visit frames in random order
}

func (cfg Config) withDefaults() Config {
	if cfg.MinibatchSize <= 0 {
		cfg.MinibatchSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg
}

// parallelConfig returns the fan-out configuration for cfg.Workers.
func (cfg Config) parallelConfig() parallel.Config {
	return parallel.DefaultConfig().WithWorkers(cfg.Workers)
}

// Stats summarizes a pass over a set of examples.
type Stats struct {
	Frames    int     // Number of frames seen
	Objective float64 // Total log-probability of the labels
}

// Average returns the objective per frame.
func (s Stats) Average() float64 {
	if s.Frames == 0 {
		return 0
	}
	return s.Objective / float64(s.Frames)
}

// Trainer runs minibatch SGD on a component chain, updating the components
// in place with their own learning rates.
//
// Example:
//
//	trainer, err := train.NewTrainer(model.Components, train.Config{MinibatchSize: 512}, rng)
//	stats, err := trainer.Train(examples)
//	log.Printf("objective per frame %.4f", stats.Average())
type Trainer struct {
	components []nnet.Component
	cfg        Config
	rng        *rand.Rand
}

// NewTrainer creates a Trainer. rng is used for shuffling and may be nil to
// use the global source.
func NewTrainer(components []nnet.Component, cfg Config, rng *rand.Rand) (*Trainer, error) {
	if len(components) == 0 {
		return nil, ErrNoComponents
	}
	if err := nnet.CheckChain(components); err != nil {
		return nil, err
	}
	return &Trainer{components: components, cfg: cfg.withDefaults(), rng: rng}, nil
}

// frameRef locates one frame of one example.
type frameRef struct {
	example, row int
}

// Train makes one pass over examples and returns the objective measured on
// each minibatch before its update.
func (t *Trainer) Train(examples []*egs.Example) (Stats, error) {
	inputDim := t.components[0].InputDim()
	if err := checkExamples(t.components, examples); err != nil {
		return Stats{}, err
	}
	var frames []frameRef
	for i, e := range examples {
		for r := range e.Labels {
			frames = append(frames, frameRef{example: i, row: r})
		}
	}
	if t.cfg.Shuffle {
		shuffle := rand.Shuffle
		if t.rng != nil {
			shuffle = t.rng.Shuffle
		}
		shuffle(len(frames), func(i, j int) { frames[i], frames[j] = frames[j], frames[i] })
	}

	var stats Stats
	for start := 0; start < len(frames); start += t.cfg.MinibatchSize {
		batch := frames[start:min(start+t.cfg.MinibatchSize, len(frames))]
		in := mat.NewDense(len(batch), inputDim, nil)
		labels := make([]int, len(batch))
		for k, f := range batch {
			e := examples[f.example]
			in.SetRow(k, e.Input.RawRowView(f.row))
			labels[k] = e.Labels[f.row]
		}
		stats.Objective += t.step(in, labels)
		stats.Frames += len(batch)
	}
	return stats, nil
}

// step performs one SGD update and returns the minibatch objective.
func (t *Trainer) step(in *mat.Dense, labels []int) float64 {
	acts := Forward(t.components, in)
	obj, deriv := LogProbDeriv(acts[len(acts)-1], labels)
	Backward(t.components, acts, deriv, t.components)
	return obj
}

// Objective evaluates the log-probability of examples without updating
// anything. Examples are evaluated concurrently; the components are only
// read.
func Objective(components []nnet.Component, examples []*egs.Example, cfg Config) (Stats, error) {
	if err := checkExamples(components, examples); err != nil {
		return Stats{}, err
	}
	return objective(components, examples, cfg.withDefaults()), nil
}

func objective(components []nnet.Component, examples []*egs.Example, cfg Config) Stats {
	total := parallel.Sum(len(examples), func(i int) float64 {
		e := examples[i]
		acts := Forward(components, e.Input)
		return logProb(acts[len(acts)-1], e.Labels)
	}, cfg.parallelConfig())
	return Stats{Frames: egs.TotalFrames(examples), Objective: total}
}

// checkExamples verifies that every example fits the chain's input and
// output dimensions.
func checkExamples(components []nnet.Component, examples []*egs.Example) error {
	if len(components) == 0 {
		return ErrNoComponents
	}
	inputDim := components[0].InputDim()
	outputDim := components[len(components)-1].OutputDim()
	for i, e := range examples {
		if err := e.Validate(outputDim); err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		if _, cols := e.Input.Dims(); cols != inputDim {
			return fmt.Errorf("example %d: %w: input has %d columns, model expects %d",
				i, nnet.ErrDimensionMismatch, cols, inputDim)
		}
	}
	return nil
}
