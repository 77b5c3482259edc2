package nnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPermuteRouting(t *testing.T) {
	c, err := NewPermuteComponentFromReorder([]int{2, 0, 1})
	require.NoError(t, err)

	// Input i goes to output reorder[i]: [a b c] -> [b c a].
	var out mat.Dense
	c.Propagate(mat.NewDense(1, 3, []float64{10, 20, 30}), &out)
	assert.Equal(t, []float64{20, 30, 10}, out.RawRowView(0))

	// Backprop is the transpose: in_deriv[i] = out_deriv[reorder[i]].
	var inDeriv mat.Dense
	c.Backprop(nil, nil, mat.NewDense(1, 3, []float64{1, 2, 3}), nil, &inDeriv)
	assert.Equal(t, []float64{3, 1, 2}, inDeriv.RawRowView(0))
}

func TestPermuteBackpropInvertsPropagate(t *testing.T) {
	rng := newTestRand()
	for dim := 1; dim <= 20; dim++ {
		c := NewPermuteComponent(dim, rng)
		require.NoError(t, checkPermutation(c.Reorder()))

		in := randomBatch(3, dim, rng)
		var out, back mat.Dense
		c.Propagate(in, &out)
		c.Backprop(nil, nil, &out, nil, &back)
		assert.True(t, mat.Equal(in, &back), "dim %d", dim)
	}
}

func TestPermuteIgnoresUpdateTarget(t *testing.T) {
	c, err := NewPermuteComponentFromReorder([]int{1, 0})
	require.NoError(t, err)
	var inDeriv mat.Dense
	c.Backprop(nil, nil, mat.NewDense(1, 2, []float64{1, 2}), c, &inDeriv)
	assert.Equal(t, []int{1, 0}, c.Reorder())
}

func TestPermuteRejectsNonBijection(t *testing.T) {
	for _, reorder := range [][]int{
		{},
		{0, 0, 2},
		{0, 3, 1},
		{-1, 0},
	} {
		_, err := NewPermuteComponentFromReorder(reorder)
		assert.ErrorIs(t, err, ErrBadPermutation, "%v", reorder)
	}

	_, err := decode("<PermuteComponent> <Reorder> [ 0 0 2 ]\n</PermuteComponent>")
	assert.ErrorIs(t, err, ErrBadPermutation)
}

func TestPermuteInitFromString(t *testing.T) {
	c := &PermuteComponent{}
	require.NoError(t, c.InitFromString("reorder=2,0,1", nil))
	assert.Equal(t, []int{2, 0, 1}, c.Reorder())

	require.NoError(t, c.InitFromString("dim=5", newTestRand()))
	assert.Equal(t, 5, c.InputDim())
	assert.Equal(t, 5, c.OutputDim())
	assert.False(t, c.BackpropNeedsInput())
	assert.False(t, c.BackpropNeedsOutput())

	for _, args := range []string{
		"",
		"dim=3 reorder=0,1,2",
		"reorder=0,0",
		"reorder=0,x",
		"dim=0",
	} {
		assert.ErrorIs(t, c.InitFromString(args, nil), ErrConfig, args)
	}
}

func TestPermuteReorderIsCopied(t *testing.T) {
	reorder := []int{1, 0}
	c, err := NewPermuteComponentFromReorder(reorder)
	require.NoError(t, err)
	reorder[0] = 0
	c.Reorder()[1] = 1
	assert.Equal(t, []int{1, 0}, c.Reorder())
}
