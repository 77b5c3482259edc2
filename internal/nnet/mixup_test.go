package nnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// mixtureChain returns Affine(3->4), Softmax(4), MixtureProb(2:2).
func mixtureChain(t *testing.T) []Component {
	t.Helper()
	rng := newTestRand()
	affine := NewAffineComponent(0.1, 0, 3, 4, 0.5, rng)
	affine.PerturbParams(0.3, rng)
	mixture, err := NewMixtureProbComponent(0.1, 0, 0.7, []int{2, 2})
	require.NoError(t, err)
	mixture.PerturbParams(0.1, rng)
	return []Component{affine, NewSoftmaxComponent(4), mixture}
}

func propagateChain(components []Component, in *mat.Dense) *mat.Dense {
	out := in
	for _, c := range components {
		var next mat.Dense
		c.Propagate(out, &next)
		out = &next
	}
	return out
}

func TestMixUpChainPreservesOutput(t *testing.T) {
	chain := mixtureChain(t)
	in := randomBatch(5, 3, newTestRand())
	want := propagateChain(chain, in)

	require.NoError(t, MixUpChain(chain, 2, 1, 0, nil))
	require.NoError(t, CheckChain(chain))
	assert.Equal(t, 5, chain[0].OutputDim())
	assert.Equal(t, 5, chain[1].InputDim())
	assert.Equal(t, 5, chain[2].InputDim())
	assert.Equal(t, 4, chain[2].OutputDim())
	assertSimplex(t, chain[2].(*MixtureProbComponent))

	got := propagateChain(chain, in)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	affine := chain[0].(*AffineComponent)
	assert.Equal(t, affine.LinearParams().RawRowView(1), affine.LinearParams().RawRowView(2))
}

func TestMixUpChainPerturbs(t *testing.T) {
	chain := mixtureChain(t)
	require.NoError(t, MixUpChain(chain, 2, 3, 0.1, newTestRand()))

	linear := chain[0].(*AffineComponent).LinearParams()
	a, b := linear.RawRowView(3), linear.RawRowView(4)
	for j := range a {
		assert.NotEqual(t, a[j], b[j])
	}
	require.NoError(t, CheckChain(chain))
}

func TestMixUpChainRejectsBadLayouts(t *testing.T) {
	chain := mixtureChain(t)
	assert.ErrorIs(t, MixUpChain(chain, 1, 0, 0, nil), ErrBadParams)
	assert.ErrorIs(t, MixUpChain(chain, 3, 0, 0, nil), ErrBadParams)
	assert.ErrorIs(t, MixUpChain(chain, 2, 4, 0, nil), ErrBadParams)

	swapped := []Component{chain[0], NewTanhComponent(4), chain[2]}
	assert.ErrorIs(t, MixUpChain(swapped, 2, 0, 0, nil), ErrBadParams)

	mismatched := []Component{NewAffineComponent(0.1, 0, 3, 5, 0.1, nil), NewSoftmaxComponent(4), chain[2]}
	assert.ErrorIs(t, MixUpChain(mismatched, 2, 0, 0, nil), ErrDimensionMismatch)
	assert.Equal(t, 4, chain[2].InputDim())
}
