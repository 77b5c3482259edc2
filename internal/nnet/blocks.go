package nnet

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// blockLayout owns all index arithmetic for a block-structured linear map.
//
// Block b is a dense matrix of shape (outRows_b x inCols_b). It reads input
// columns [inOffsets[b], inOffsets[b+1]) and writes output columns
// [outOffsets[b], outOffsets[b+1]). Parameters are enumerated block by block
// in row-major order.
type blockLayout struct {
	inOffsets    []int // len numBlocks+1
	outOffsets   []int // len numBlocks+1
	paramOffsets []int // len numBlocks+1
}

// newBlockLayout precomputes the offsets for blocks.
func newBlockLayout(blocks []*mat.Dense) blockLayout {
	l := blockLayout{
		inOffsets:    make([]int, len(blocks)+1),
		outOffsets:   make([]int, len(blocks)+1),
		paramOffsets: make([]int, len(blocks)+1),
	}
	for b, m := range blocks {
		rows, cols := m.Dims()
		l.inOffsets[b+1] = l.inOffsets[b] + cols
		l.outOffsets[b+1] = l.outOffsets[b] + rows
		l.paramOffsets[b+1] = l.paramOffsets[b] + rows*cols
	}
	return l
}

func (l blockLayout) numBlocks() int { return len(l.inOffsets) - 1 }

func (l blockLayout) inputDim() int { return l.inOffsets[len(l.inOffsets)-1] }

func (l blockLayout) outputDim() int { return l.outOffsets[len(l.outOffsets)-1] }

func (l blockLayout) numParams() int { return l.paramOffsets[len(l.paramOffsets)-1] }

// inputCols returns the columns of m (a batch with inputDim columns) read
// by block b, as a view.
func (l blockLayout) inputCols(m *mat.Dense, b int) *mat.Dense {
	rows, _ := m.Dims()
	return m.Slice(0, rows, l.inOffsets[b], l.inOffsets[b+1]).(*mat.Dense)
}

// outputCols returns the columns of m (a batch with outputDim columns)
// written by block b, as a view.
func (l blockLayout) outputCols(m *mat.Dense, b int) *mat.Dense {
	rows, _ := m.Dims()
	return m.Slice(0, rows, l.outOffsets[b], l.outOffsets[b+1]).(*mat.Dense)
}

// outputRange returns the half-open output column range of block b.
func (l blockLayout) outputRange(b int) (int, int) {
	return l.outOffsets[b], l.outOffsets[b+1]
}

// blockOfInput maps an input column to its block and the column within it.
func (l blockLayout) blockOfInput(col int) (block, offset int) {
	if col < 0 || col >= l.inputDim() {
		panic(fmt.Sprintf("blockLayout: input column %d out of range [0, %d)", col, l.inputDim()))
	}
	block = sort.SearchInts(l.inOffsets, col+1) - 1
	return block, col - l.inOffsets[block]
}

// locateParam maps a flat parameter index to (block, row, col).
func (l blockLayout) locateParam(blocks []*mat.Dense, flat int) (block, row, col int) {
	if flat < 0 || flat >= l.numParams() {
		panic(fmt.Sprintf("blockLayout: parameter %d out of range [0, %d)", flat, l.numParams()))
	}
	block = sort.SearchInts(l.paramOffsets, flat+1) - 1
	_, cols := blocks[block].Dims()
	within := flat - l.paramOffsets[block]
	return block, within / cols, within % cols
}

// stackBlocks stacks equal-width blocks vertically:
//
//	[ M
//	  N
//	  O ]
//
// which is the serialized form of a block-diagonal matrix diag(M, N, O).
func stackBlocks(blocks []*mat.Dense) *mat.Dense {
	rows, cols := blocks[0].Dims()
	stacked := mat.NewDense(rows*len(blocks), cols, nil)
	for b, m := range blocks {
		stacked.Slice(b*rows, (b+1)*rows, 0, cols).(*mat.Dense).Copy(m)
	}
	return stacked
}

// splitStacked is the inverse of stackBlocks.
func splitStacked(stacked *mat.Dense, numBlocks int) ([]*mat.Dense, error) {
	if numBlocks <= 0 {
		return nil, fmt.Errorf("%w: num-blocks must be positive, got %d", ErrBadParams, numBlocks)
	}
	if stacked.IsEmpty() {
		return nil, fmt.Errorf("%w: empty block parameters", ErrBadParams)
	}
	rows, cols := stacked.Dims()
	if rows%numBlocks != 0 {
		return nil, fmt.Errorf("%w: %d rows cannot be split into %d blocks", ErrBadParams, rows, numBlocks)
	}
	blockRows := rows / numBlocks
	blocks := make([]*mat.Dense, numBlocks)
	for b := range blocks {
		blocks[b] = mat.DenseCopyOf(stacked.Slice(b*blockRows, (b+1)*blockRows, 0, cols))
	}
	return blocks, nil
}

// copyBlocks deep-copies a block list.
func copyBlocks(blocks []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(blocks))
	for b, m := range blocks {
		out[b] = mat.DenseCopyOf(m)
	}
	return out
}
