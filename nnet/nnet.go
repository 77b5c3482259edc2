// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nnet

import (
	"io"
	"math/rand/v2"

	"github.com/born-ml/nnet/internal/am"
	"github.com/born-ml/nnet/internal/egs"
	"github.com/born-ml/nnet/internal/kio"
	"github.com/born-ml/nnet/internal/nnet"
	"github.com/born-ml/nnet/internal/train"
	"gonum.org/v1/gonum/mat"
)

// Component is the common interface of every network layer.
type Component = nnet.Component

// Updatable is implemented by components with trainable parameters.
type Updatable = nnet.Updatable

// Errors

var (
	ErrUnknownComponent  = nnet.ErrUnknownComponent
	ErrDimensionMismatch = nnet.ErrDimensionMismatch
	ErrBadPermutation    = nnet.ErrBadPermutation
	ErrBadParams         = nnet.ErrBadParams
	ErrConfig            = nnet.ErrConfig
	ErrBadExample        = egs.ErrBadExample
	ErrNoComponents      = train.ErrNoComponents
	ErrTruncated         = kio.ErrTruncated
	ErrUnexpectedToken   = kio.ErrUnexpectedToken
	ErrMalformed         = kio.ErrMalformed
)

// ConfigError describes a rejected component configuration.
type ConfigError = nnet.ConfigError

// Streams

// Reader reads the Kaldi token stream.
type Reader = kio.Reader

// Writer writes the Kaldi token stream.
type Writer = kio.Writer

// NewReader detects the stream mode from its header and returns a Reader.
func NewReader(r io.Reader) (*Reader, error) {
	return kio.NewReader(r)
}

// NewWriter writes the mode header and returns a Writer.
func NewWriter(w io.Writer, binary bool) *Writer {
	return kio.NewWriter(w, binary)
}

// Nonlinearities

// SigmoidComponent applies the logistic function elementwise.
type SigmoidComponent = nnet.SigmoidComponent

// NewSigmoidComponent creates a sigmoid layer of the given dimension.
func NewSigmoidComponent(dim int) *SigmoidComponent {
	return nnet.NewSigmoidComponent(dim)
}

// TanhComponent applies tanh elementwise.
type TanhComponent = nnet.TanhComponent

// NewTanhComponent creates a tanh layer of the given dimension.
func NewTanhComponent(dim int) *TanhComponent {
	return nnet.NewTanhComponent(dim)
}

// SoftmaxComponent normalizes each row into a probability distribution.
type SoftmaxComponent = nnet.SoftmaxComponent

// NewSoftmaxComponent creates a softmax layer of the given dimension.
func NewSoftmaxComponent(dim int) *SoftmaxComponent {
	return nnet.NewSoftmaxComponent(dim)
}

// Updatable layers

// AffineComponent computes out = in·Wᵀ + b.
type AffineComponent = nnet.AffineComponent

// NewAffineComponent creates an affine layer with Gaussian weights of
// standard deviation paramStddev and a zero bias.
//
// Example:
//
//	layer := nnet.NewAffineComponent(0.01, 1e-5, 40, 512, 0.05, rng)
func NewAffineComponent(learningRate, l2Penalty float64, inputDim, outputDim int, paramStddev float64, rng *rand.Rand) *AffineComponent {
	return nnet.NewAffineComponent(learningRate, l2Penalty, inputDim, outputDim, paramStddev, rng)
}

// NewAffineComponentFromParams creates an affine layer from existing
// parameters, which are copied.
func NewAffineComponentFromParams(learningRate, l2Penalty float64, linear *mat.Dense, bias *mat.VecDense) (*AffineComponent, error) {
	return nnet.NewAffineComponentFromParams(learningRate, l2Penalty, linear, bias)
}

// BlockAffineComponent is an affine layer with a block-diagonal weight
// matrix.
type BlockAffineComponent = nnet.BlockAffineComponent

// NewBlockAffineComponent creates a block-diagonal affine layer with
// numBlocks equal blocks.
//
// Example:
//
//	layer, err := nnet.NewBlockAffineComponent(0.01, 0, 400, 200, 0.05, 10, rng)
func NewBlockAffineComponent(learningRate, l2Penalty float64, inputDim, outputDim int, paramStddev float64, numBlocks int, rng *rand.Rand) (*BlockAffineComponent, error) {
	return nnet.NewBlockAffineComponent(learningRate, l2Penalty, inputDim, outputDim, paramStddev, numBlocks, rng)
}

// MixtureProbComponent maps per-block posteriors through column-stochastic
// mixing matrices.
type MixtureProbComponent = nnet.MixtureProbComponent

// NewMixtureProbComponent creates one square block per entry of sizes with
// diagElement on the diagonal and the remaining mass spread evenly.
//
// Example:
//
//	layer, err := nnet.NewMixtureProbComponent(0.01, 0, 0.9, []int{3, 5})
func NewMixtureProbComponent(learningRate, l2Penalty, diagElement float64, sizes []int) (*MixtureProbComponent, error) {
	return nnet.NewMixtureProbComponent(learningRate, l2Penalty, diagElement, sizes)
}

// MixUpChain splits mixture input col of components[index] together with
// the Affine and Softmax feeding it, leaving the chain's output unchanged
// when perturbStddev is 0.
func MixUpChain(components []Component, index, col int, perturbStddev float64, rng *rand.Rand) error {
	return nnet.MixUpChain(components, index, col, perturbStddev, rng)
}

// Fixed layers

// PermuteComponent reorders the columns of its input.
type PermuteComponent = nnet.PermuteComponent

// NewPermuteComponent creates a random permutation of dim columns.
func NewPermuteComponent(dim int, rng *rand.Rand) *PermuteComponent {
	return nnet.NewPermuteComponent(dim, rng)
}

// NewPermuteComponentFromReorder creates a permutation sending input column
// i to output column reorder[i].
func NewPermuteComponentFromReorder(reorder []int) (*PermuteComponent, error) {
	return nnet.NewPermuteComponentFromReorder(reorder)
}

// Factory

// NewByType returns an empty component for a type tag such as
// "AffineComponent".
func NewByType(typ string) (Component, error) {
	return nnet.NewByType(typ)
}

// RegisteredTypes returns every known type tag in sorted order.
func RegisteredTypes() []string {
	return nnet.RegisteredTypes()
}

// ReadNew reads the next serialized component, whatever its type.
func ReadNew(r *Reader) (Component, error) {
	return nnet.ReadNew(r)
}

// NewFromString builds a component from a config line such as
// "TanhComponent dim=512".
func NewFromString(line string, rng *rand.Rand) (Component, error) {
	return nnet.NewFromString(line, rng)
}

// ReadConfig builds a component chain from a config file with one
// component per line.
func ReadConfig(r io.Reader, rng *rand.Rand) ([]Component, error) {
	return nnet.ReadConfig(r, rng)
}

// CheckChain verifies that adjacent components have matching dimensions.
func CheckChain(components []Component) error {
	return nnet.CheckChain(components)
}

// Models

// AmNnet is an acoustic model: a transition model, a component chain and
// the pdf priors.
type AmNnet = am.AmNnet

// TransitionModel is the opaque HMM part of an acoustic model.
type TransitionModel = am.TransitionModel

// NewAmNnet creates an acoustic model around components.
func NewAmNnet(tm TransitionModel, components []Component) (*AmNnet, error) {
	return am.New(tm, components)
}

// ReadAmNnet reads an acoustic model from a file.
func ReadAmNnet(path string) (*AmNnet, error) {
	return am.ReadFile(path)
}

// Examples

// Example is a block of labelled input frames.
type Example = egs.Example

// ReadExamples reads every example in an archive.
func ReadExamples(path string) ([]*Example, error) {
	return egs.ReadAll(path)
}

// WriteExamples writes an example archive.
func WriteExamples(path string, binary bool, examples []*Example) error {
	return egs.WriteAll(path, binary, examples)
}

// Training

// TrainConfig holds configuration for the SGD trainer.
type TrainConfig = train.Config

// TrainStats summarizes a pass over examples.
type TrainStats = train.Stats

// Trainer runs minibatch SGD on a component chain.
type Trainer = train.Trainer

// ShrinkConfig holds configuration for Shrink.
type ShrinkConfig = train.ShrinkConfig

// ShrinkResult reports what Shrink did.
type ShrinkResult = train.ShrinkResult

// Forward propagates in through components and returns every activation.
func Forward(components []Component, in *mat.Dense) []*mat.Dense {
	return train.Forward(components, in)
}

// Backward propagates outDeriv back through components. See train.Backward
// for the meaning of targets.
func Backward(components []Component, acts []*mat.Dense, outDeriv *mat.Dense, targets []Component) *mat.Dense {
	return train.Backward(components, acts, outDeriv, targets)
}

// NewTrainer creates a Trainer that updates components in place.
//
// Example:
//
//	trainer, err := nnet.NewTrainer(model.Components, nnet.TrainConfig{MinibatchSize: 512}, rng)
//	stats, err := trainer.Train(examples)
func NewTrainer(components []Component, cfg TrainConfig, rng *rand.Rand) (*Trainer, error) {
	return train.NewTrainer(components, cfg, rng)
}

// Objective evaluates the log-probability of the labels of examples.
func Objective(components []Component, examples []*Example, cfg TrainConfig) (TrainStats, error) {
	return train.Objective(components, examples, cfg)
}

// Shrink rescales the updatable components to maximize the objective on
// valid.
func Shrink(components []Component, valid []*Example, cfg ShrinkConfig) (ShrinkResult, error) {
	return train.Shrink(components, valid, cfg)
}
