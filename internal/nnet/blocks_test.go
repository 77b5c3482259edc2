package nnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBlockLayout(t *testing.T) {
	blocks := []*mat.Dense{
		mat.NewDense(2, 3, nil),
		mat.NewDense(1, 1, nil),
		mat.NewDense(4, 2, nil),
	}
	l := newBlockLayout(blocks)
	assert.Equal(t, 3, l.numBlocks())
	assert.Equal(t, 6, l.inputDim())
	assert.Equal(t, 7, l.outputDim())
	assert.Equal(t, 6+1+8, l.numParams())

	start, end := l.outputRange(2)
	assert.Equal(t, 3, start)
	assert.Equal(t, 7, end)

	tests := []struct {
		col, block, offset int
	}{
		{0, 0, 0},
		{2, 0, 2},
		{3, 1, 0},
		{4, 2, 0},
		{5, 2, 1},
	}
	for _, tt := range tests {
		b, off := l.blockOfInput(tt.col)
		assert.Equal(t, tt.block, b, "column %d", tt.col)
		assert.Equal(t, tt.offset, off, "column %d", tt.col)
	}
	assert.Panics(t, func() { l.blockOfInput(6) })
	assert.Panics(t, func() { l.blockOfInput(-1) })

	b, row, col := l.locateParam(blocks, 5)
	assert.Equal(t, []int{0, 1, 2}, []int{b, row, col})
	b, row, col = l.locateParam(blocks, 6)
	assert.Equal(t, []int{1, 0, 0}, []int{b, row, col})
	b, row, col = l.locateParam(blocks, 14)
	assert.Equal(t, []int{2, 3, 1}, []int{b, row, col})
	assert.Panics(t, func() { l.locateParam(blocks, 15) })
}

func TestBlockLayoutViews(t *testing.T) {
	l := newBlockLayout([]*mat.Dense{mat.NewDense(1, 2, nil), mat.NewDense(2, 1, nil)})
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})

	in := l.inputCols(m, 1)
	assert.Equal(t, []float64{3, 6}, mat.Col(nil, 0, in))

	out := l.outputCols(m, 1)
	out.Set(0, 0, 20)
	assert.Equal(t, 20.0, m.At(0, 1), "outputCols must be a view")
}

func TestStackAndSplitBlocks(t *testing.T) {
	blocks := []*mat.Dense{
		mat.NewDense(2, 2, []float64{1, 2, 3, 4}),
		mat.NewDense(2, 2, []float64{5, 6, 7, 8}),
	}
	stacked := stackBlocks(blocks)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, stacked.RawMatrix().Data)

	split, err := splitStacked(stacked, 2)
	require.NoError(t, err)
	require.Len(t, split, 2)
	assert.True(t, mat.Equal(blocks[1], split[1]))

	_, err = splitStacked(stacked, 3)
	assert.ErrorIs(t, err, ErrBadParams)
	_, err = splitStacked(&mat.Dense{}, 1)
	assert.ErrorIs(t, err, ErrBadParams)
	_, err = splitStacked(stacked, 0)
	assert.ErrorIs(t, err, ErrBadParams)
}
