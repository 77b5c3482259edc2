package train

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/nnet/internal/egs"
	"github.com/born-ml/nnet/internal/nnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(5, 6))
}

// toyExamples returns frames from two Gaussian clusters in 2-D labelled by
// cluster.
func toyExamples(rng *rand.Rand, numExamples, framesPerExample int, spread float64) []*egs.Example {
	centers := [][]float64{{1, 1}, {-1, -1}}
	examples := make([]*egs.Example, numExamples)
	for i := range examples {
		in := mat.NewDense(framesPerExample, 2, nil)
		labels := make([]int, framesPerExample)
		for r := range labels {
			l := rng.IntN(2)
			labels[r] = l
			in.Set(r, 0, centers[l][0]+spread*rng.NormFloat64())
			in.Set(r, 1, centers[l][1]+spread*rng.NormFloat64())
		}
		examples[i] = &egs.Example{Input: in, Labels: labels}
	}
	return examples
}

func toyModel(rng *rand.Rand, learningRate float64) []nnet.Component {
	return []nnet.Component{
		nnet.NewAffineComponent(learningRate, 0, 2, 4, 0.1, rng),
		nnet.NewTanhComponent(4),
		nnet.NewAffineComponent(learningRate, 0, 4, 2, 0.1, rng),
		nnet.NewSoftmaxComponent(2),
	}
}

func TestForwardBackwardShapes(t *testing.T) {
	rng := newTestRand()
	components := toyModel(rng, 0.1)
	in := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})

	acts := Forward(components, in)
	require.Len(t, acts, 5)
	assert.Same(t, in, acts[0])
	r, c := acts[4].Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)

	inDeriv := Backward(components, acts, mat.NewDense(3, 2, nil), nil)
	r, c = inDeriv.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)

	assert.Panics(t, func() { Backward(components, acts[:3], mat.NewDense(3, 2, nil), nil) })
	assert.Panics(t, func() { Backward(components, acts, mat.NewDense(3, 2, nil), components[:2]) })
}

func TestBackwardAccumulatesGradients(t *testing.T) {
	rng := newTestRand()
	components := toyModel(rng, 0.1)
	targets := make([]nnet.Component, len(components))
	for _, i := range updatables(components) {
		g := components[i].Copy().(nnet.Updatable)
		g.SetZero(true)
		targets[i] = g
	}

	in := mat.NewDense(2, 2, []float64{0.5, -0.5, 1, 2})
	acts := Forward(components, in)
	_, deriv := LogProbDeriv(acts[len(acts)-1], []int{0, 1})
	before := components[0].(nnet.Updatable).DotProduct(components[0].(nnet.Updatable))
	Backward(components, acts, deriv, targets)

	assert.Equal(t, before, components[0].(nnet.Updatable).DotProduct(components[0].(nnet.Updatable)))
	for _, i := range updatables(components) {
		g := targets[i].(nnet.Updatable)
		assert.Greater(t, g.DotProduct(g), 0.0, "component %d", i)
	}
}

func TestLogProbDeriv(t *testing.T) {
	out := mat.NewDense(2, 3, []float64{
		0.2, 0.5, 0.3,
		0, 0, 1,
	})
	obj, deriv := LogProbDeriv(out, []int{1, 0})
	assert.InDelta(t, math.Log(0.5)+math.Log(probFloor), obj, 1e-12)
	assert.Equal(t, []float64{0, 2, 0, 1 / probFloor, 0, 0}, deriv.RawMatrix().Data)

	assert.Panics(t, func() { LogProbDeriv(out, []int{0}) })
}

func TestTrainerImprovesObjective(t *testing.T) {
	rng := newTestRand()
	components := toyModel(rng, 0.05)
	examples := toyExamples(rng, 20, 10, 0.3)

	initial, err := Objective(components, examples, Config{})
	require.NoError(t, err)
	assert.Equal(t, 200, initial.Frames)

	trainer, err := NewTrainer(components, Config{MinibatchSize: 16, Shuffle: true}, rng)
	require.NoError(t, err)
	for epoch := 0; epoch < 10; epoch++ {
		stats, err := trainer.Train(examples)
		require.NoError(t, err)
		assert.Equal(t, 200, stats.Frames)
	}

	final, err := Objective(components, examples, Config{Workers: 4})
	require.NoError(t, err)
	assert.Greater(t, final.Average(), initial.Average()+0.1)
}

func TestTrainerKeepsMixtureOnSimplex(t *testing.T) {
	rng := newTestRand()
	mixture, err := nnet.NewMixtureProbComponent(0.1, 0, 0.5, []int{2})
	require.NoError(t, err)
	components := append(toyModel(rng, 0.05), mixture)

	trainer, err := NewTrainer(components, Config{MinibatchSize: 8}, nil)
	require.NoError(t, err)
	_, err = trainer.Train(toyExamples(rng, 5, 8, 0.5))
	require.NoError(t, err)

	block := mixture.Block(0)
	for j := 0; j < 2; j++ {
		assert.InDelta(t, 1.0, block.At(0, j)+block.At(1, j), 1e-12)
	}
}

func TestTrainerRejectsBadInput(t *testing.T) {
	rng := newTestRand()
	_, err := NewTrainer(nil, Config{}, nil)
	assert.ErrorIs(t, err, ErrNoComponents)

	_, err = NewTrainer([]nnet.Component{nnet.NewTanhComponent(2), nnet.NewTanhComponent(3)}, Config{}, nil)
	assert.ErrorIs(t, err, nnet.ErrDimensionMismatch)

	trainer, err := NewTrainer(toyModel(rng, 0.1), Config{}, nil)
	require.NoError(t, err)

	_, err = trainer.Train([]*egs.Example{{Input: mat.NewDense(1, 2, nil), Labels: []int{5}}})
	assert.ErrorIs(t, err, egs.ErrBadExample)

	_, err = trainer.Train([]*egs.Example{{Input: mat.NewDense(1, 3, nil), Labels: []int{0}}})
	assert.ErrorIs(t, err, nnet.ErrDimensionMismatch)
}

func TestShrinkNeverLowersObjective(t *testing.T) {
	rng := newTestRand()
	components := toyModel(rng, 0.05)
	trainSet := toyExamples(rng, 20, 10, 0.8)
	valid := toyExamples(rng, 10, 10, 0.8)

	trainer, err := NewTrainer(components, Config{MinibatchSize: 8}, rng)
	require.NoError(t, err)
	for epoch := 0; epoch < 5; epoch++ {
		_, err := trainer.Train(trainSet)
		require.NoError(t, err)
	}
	// Blow up the output layer so the model is overconfident.
	components[2].(nnet.Updatable).Scale(8)

	res, err := Shrink(components, valid, ShrinkConfig{MaxEvaluations: 40})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, res.Indices)
	assert.GreaterOrEqual(t, res.After.Objective, res.Before.Objective)

	got, err := Objective(components, valid, Config{})
	require.NoError(t, err)
	assert.InDelta(t, res.After.Objective, got.Objective, 1e-6*math.Abs(got.Objective))
	for _, s := range res.Scales {
		assert.GreaterOrEqual(t, s, math.Exp(-2)-1e-12)
		assert.LessOrEqual(t, s, math.Exp(1)+1e-12)
	}
}

func TestShrinkSkipsMixture(t *testing.T) {
	mixture, err := nnet.NewMixtureProbComponent(0.1, 0, 0.9, []int{2})
	require.NoError(t, err)
	components := []nnet.Component{nnet.NewSoftmaxComponent(2), mixture}
	valid := toyExamples(newTestRand(), 2, 4, 0.5)

	res, err := Shrink(components, valid, ShrinkConfig{})
	require.NoError(t, err)
	assert.Empty(t, res.Indices)
	assert.Equal(t, res.Before, res.After)

	_, err = Shrink(components, valid, ShrinkConfig{MinLogScale: 0.5, MaxLogScale: 1})
	assert.Error(t, err)
}
