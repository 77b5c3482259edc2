// Package main provides the nnet command-line tool for creating, inspecting
// and training acoustic models.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/born-ml/nnet/internal/am"
	"github.com/born-ml/nnet/internal/egs"
	"github.com/born-ml/nnet/internal/kio"
	"github.com/born-ml/nnet/internal/nnet"
	"github.com/born-ml/nnet/internal/train"
)

const version = "v0.1.0"

const usage = `Usage: nnet <command> [flags] [args]

Commands:
  init [-seed N] [-binary] <config> <model-out>
      Create a model from a component configuration file.
  info <model>
      Print a description of a model.
  copy [-binary] [-learning-rate R] <model-in> <model-out>
      Copy a model, optionally changing the mode or the learning rates.
  train [-learning-rate R] [-minibatch-size N] [-epochs N] <model-in> <egs> <model-out>
      Run minibatch SGD over an example archive.
  shrink [-max-evaluations N] <model-in> <valid-egs> <model-out>
      Rescale the updatable components to maximize validation log-probability.
  mixup [-perturb S] [-seed N] <model-in> <component> <column> <model-out>
      Split one mixture input and the Affine and Softmax rows feeding it.
  version
      Show version.
`

// errUsage marks errors caused by bad command-line arguments.
var errUsage = errors.New("bad usage")

func main() {
	log.SetFlags(0)
	log.SetPrefix("nnet: ")

	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		log.Fatalf("%v", err)
	}
}

// run executes one command with its arguments.
func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "init":
		return runInit(rest)
	case "info":
		return runInfo(rest, stdout)
	case "copy":
		return runCopy(rest)
	case "train":
		return runTrain(rest)
	case "shrink":
		return runShrink(rest)
	case "mixup":
		return runMixUp(rest)
	case "version":
		_, err := fmt.Fprintf(stdout, "nnet %s\n", version)
		return err
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// parseFlags parses fs and checks the number of positional arguments.
func parseFlags(fs *flag.FlagSet, args []string, positional int) ([]string, error) {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errUsage, fs.Name(), err)
	}
	if fs.NArg() != positional {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", errUsage, fs.Name(), positional, fs.NArg())
	}
	return fs.Args(), nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	seed := fs.Uint64("seed", 0, "Random seed for parameter initialization")
	binary := fs.Bool("binary", true, "Write in binary mode")
	pos, err := parseFlags(fs, args, 2)
	if err != nil {
		return err
	}

	f, err := os.Open(pos[0])
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	components, err := nnet.ReadConfig(f, newRand(*seed))
	if err != nil {
		return fmt.Errorf("%s: %w", pos[0], err)
	}
	model, err := am.New(am.TransitionModel{}, components)
	if err != nil {
		return err
	}
	if err := model.WriteFile(pos[1], *binary); err != nil {
		return err
	}
	log.Printf("initialized %d components, %d parameters, wrote %s", len(components), model.NumParams(), pos[1])
	return nil
}

func runInfo(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	pos, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}
	model, err := am.ReadFile(pos[0])
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, model.Info())
	return err
}

func runCopy(args []string) error {
	fs := flag.NewFlagSet("copy", flag.ContinueOnError)
	binary := fs.Bool("binary", true, "Write in binary mode")
	lrate := fs.Float64("learning-rate", 0, "If positive, set the learning rate of every updatable component")
	pos, err := parseFlags(fs, args, 2)
	if err != nil {
		return err
	}
	model, err := am.ReadFile(pos[0])
	if err != nil {
		return err
	}
	if *lrate > 0 {
		setLearningRate(model.Components, *lrate)
	}
	if err := model.WriteFile(pos[1], *binary); err != nil {
		return err
	}
	log.Printf("copied %s to %s (%s)", pos[0], pos[1], kio.ModeName(*binary))
	return nil
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	lrate := fs.Float64("learning-rate", 0, "If positive, override the learning rate of every updatable component")
	minibatch := fs.Int("minibatch-size", 256, "Frames per SGD update")
	epochs := fs.Int("epochs", 1, "Passes over the examples")
	workers := fs.Int("workers", 0, "Goroutines for objective evaluation (0 = NumCPU)")
	shuffle := fs.Bool("shuffle", true, "Visit frames in random order")
	seed := fs.Uint64("seed", 0, "Random seed for shuffling")
	binary := fs.Bool("binary", true, "Write in binary mode")
	pos, err := parseFlags(fs, args, 3)
	if err != nil {
		return err
	}
	if *epochs <= 0 {
		return fmt.Errorf("%w: -epochs must be positive", errUsage)
	}

	model, err := am.ReadFile(pos[0])
	if err != nil {
		return err
	}
	examples, err := egs.ReadAll(pos[1])
	if err != nil {
		return err
	}
	if *lrate > 0 {
		setLearningRate(model.Components, *lrate)
	}

	cfg := train.Config{MinibatchSize: *minibatch, Workers: *workers, Shuffle: *shuffle}
	trainer, err := train.NewTrainer(model.Components, cfg, newRand(*seed))
	if err != nil {
		return err
	}
	for epoch := 1; epoch <= *epochs; epoch++ {
		stats, err := trainer.Train(examples)
		if err != nil {
			return err
		}
		log.Printf("epoch %d: %d frames, log-prob per frame %.5f", epoch, stats.Frames, stats.Average())
	}
	return model.WriteFile(pos[2], *binary)
}

func runShrink(args []string) error {
	fs := flag.NewFlagSet("shrink", flag.ContinueOnError)
	maxEvals := fs.Int("max-evaluations", 50, "Objective evaluations allowed")
	minLog := fs.Float64("min-log-scale", -2, "Lower bound of each log scale")
	maxLog := fs.Float64("max-log-scale", 1, "Upper bound of each log scale")
	workers := fs.Int("workers", 0, "Goroutines for objective evaluation (0 = NumCPU)")
	binary := fs.Bool("binary", true, "Write in binary mode")
	pos, err := parseFlags(fs, args, 3)
	if err != nil {
		return err
	}

	model, err := am.ReadFile(pos[0])
	if err != nil {
		return err
	}
	valid, err := egs.ReadAll(pos[1])
	if err != nil {
		return err
	}

	res, err := train.Shrink(model.Components, valid, train.ShrinkConfig{
		MinLogScale:    *minLog,
		MaxLogScale:    *maxLog,
		MaxEvaluations: *maxEvals,
		Workers:        *workers,
	})
	if err != nil {
		return err
	}
	for k, i := range res.Indices {
		log.Printf("component %d (%s): scale %.4f", i, model.Components[i].Type(), res.Scales[k])
	}
	log.Printf("validation log-prob per frame %.5f -> %.5f", res.Before.Average(), res.After.Average())
	return model.WriteFile(pos[2], *binary)
}

func runMixUp(args []string) error {
	fs := flag.NewFlagSet("mixup", flag.ContinueOnError)
	perturb := fs.Float64("perturb", 0.01, "Stddev of the noise separating the split rows")
	seed := fs.Uint64("seed", 0, "Random seed for the perturbation")
	binary := fs.Bool("binary", true, "Write in binary mode")
	pos, err := parseFlags(fs, args, 4)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(pos[1])
	if err != nil {
		return fmt.Errorf("%w: bad component index %q", errUsage, pos[1])
	}
	col, err := strconv.Atoi(pos[2])
	if err != nil {
		return fmt.Errorf("%w: bad column %q", errUsage, pos[2])
	}

	model, err := am.ReadFile(pos[0])
	if err != nil {
		return err
	}
	if err := nnet.MixUpChain(model.Components, index, col, *perturb, newRand(*seed)); err != nil {
		return err
	}
	if err := model.Validate(); err != nil {
		return err
	}
	log.Printf("split column %d of component %d, mixture input now %d", col, index, model.Components[index].InputDim())
	return model.WriteFile(pos[3], *binary)
}

func setLearningRate(components []nnet.Component, lrate float64) {
	for _, c := range components {
		if u, ok := c.(nnet.Updatable); ok {
			u.SetLearningRate(lrate)
		}
	}
}
