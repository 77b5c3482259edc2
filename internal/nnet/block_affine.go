package nnet

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/nnet/internal/kio"
	"github.com/born-ml/nnet/internal/parallel"
	"gonum.org/v1/gonum/mat"
)

// BlockAffineComponent is an affine map whose linear part is block-diagonal
// with numBlocks equal-sized blocks:
//
//	W = [ M 0 0
//	      0 N 0
//	      0 0 O ]
//
// Block b maps input columns [b·blockCols, (b+1)·blockCols) to output columns
// [b·blockRows, (b+1)·blockRows), so both InputDim and OutputDim scale with
// the number of blocks. The bias spans the whole output.
type BlockAffineComponent struct {
	updatableBase
	blocks []*mat.Dense    // numBlocks x [blockRows, blockCols]
	bias   *mat.VecDense   // [output_dim]
	layout blockLayout     // offsets of each block
	par    parallel.Config // fan-out over blocks
}

// NewBlockAffineComponent creates a BlockAffineComponent with weights drawn
// from N(0, paramStddev^2) and a zero bias. numBlocks must divide both
// inputDim and outputDim.
func NewBlockAffineComponent(learningRate, l2Penalty float64, inputDim, outputDim int, paramStddev float64, numBlocks int, rng *rand.Rand) (*BlockAffineComponent, error) {
	if inputDim <= 0 || outputDim <= 0 || numBlocks <= 0 {
		return nil, fmt.Errorf("%w: input-dim=%d output-dim=%d num-blocks=%d must be positive",
			ErrBadParams, inputDim, outputDim, numBlocks)
	}
	if inputDim%numBlocks != 0 || outputDim%numBlocks != 0 {
		return nil, fmt.Errorf("%w: num-blocks=%d must divide input-dim=%d and output-dim=%d",
			ErrDimensionMismatch, numBlocks, inputDim, outputDim)
	}
	blocks := make([]*mat.Dense, numBlocks)
	for b := range blocks {
		blocks[b] = randomDense(outputDim/numBlocks, inputDim/numBlocks, paramStddev, rng)
	}
	return newBlockAffine(learningRate, l2Penalty, blocks, mat.NewVecDense(outputDim, nil)), nil
}

// NewBlockAffineComponentFromBlocks creates a BlockAffineComponent owning
// copies of the given equal-shaped blocks. bias may be nil for a zero bias.
func NewBlockAffineComponentFromBlocks(learningRate, l2Penalty float64, blocks []*mat.Dense, bias *mat.VecDense) (*BlockAffineComponent, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no blocks", ErrBadParams)
	}
	for b, m := range blocks {
		if m == nil || m.IsEmpty() {
			return nil, fmt.Errorf("%w: block %d is empty", ErrBadParams, b)
		}
		if !sameDims(m, blocks[0]) {
			return nil, fmt.Errorf("%w: block %d shape differs from block 0", ErrDimensionMismatch, b)
		}
	}
	rows, _ := blocks[0].Dims()
	outputDim := rows * len(blocks)
	b := mat.NewVecDense(outputDim, nil)
	if bias != nil {
		if bias.Len() != outputDim {
			return nil, fmt.Errorf("%w: bias length %d, expected %d", ErrDimensionMismatch, bias.Len(), outputDim)
		}
		b.CopyVec(bias)
	}
	return newBlockAffine(learningRate, l2Penalty, copyBlocks(blocks), b), nil
}

func newBlockAffine(learningRate, l2Penalty float64, blocks []*mat.Dense, bias *mat.VecDense) *BlockAffineComponent {
	return &BlockAffineComponent{
		updatableBase: updatableBase{learningRate: learningRate, l2Penalty: l2Penalty},
		blocks:        blocks,
		bias:          bias,
		layout:        newBlockLayout(blocks),
		par:           parallel.DefaultConfig(),
	}
}

func sameDims(a, b *mat.Dense) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}

// Type returns "BlockAffineComponent".
func (c *BlockAffineComponent) Type() string { return "BlockAffineComponent" }

// InputDim returns numBlocks · blockCols.
func (c *BlockAffineComponent) InputDim() int {
	if c.blocks == nil {
		return 0
	}
	return c.layout.inputDim()
}

// OutputDim returns numBlocks · blockRows.
func (c *BlockAffineComponent) OutputDim() int {
	if c.blocks == nil {
		return 0
	}
	return c.layout.outputDim()
}

// NumBlocks returns the number of diagonal blocks.
func (c *BlockAffineComponent) NumBlocks() int { return len(c.blocks) }

// Block returns block b. The caller must not modify it.
func (c *BlockAffineComponent) Block(b int) *mat.Dense { return c.blocks[b] }

// BiasParams returns the bias vector. The caller must not modify it.
func (c *BlockAffineComponent) BiasParams() *mat.VecDense { return c.bias }

// SetParallel sets how per-block work is spread over goroutines.
func (c *BlockAffineComponent) SetParallel(cfg parallel.Config) { c.par = cfg }

// BackpropNeedsInput reports true.
func (c *BlockAffineComponent) BackpropNeedsInput() bool { return true }

// BackpropNeedsOutput reports false.
func (c *BlockAffineComponent) BackpropNeedsOutput() bool { return false }

// InitFromString recognizes the AffineComponent keys plus num-blocks
// (required).
func (c *BlockAffineComponent) InitFromString(args string, rng *rand.Rand) error {
	a, err := parseArgs(c.Type(), args)
	if err != nil {
		return err
	}
	inputDim := a.requiredInt("input-dim")
	outputDim := a.requiredInt("output-dim")
	numBlocks := a.requiredInt("num-blocks")
	a.positiveInt("input-dim", inputDim)
	a.positiveInt("output-dim", outputDim)
	a.positiveInt("num-blocks", numBlocks)
	lrate := a.optionalFloat("learning-rate", DefaultLearningRate)
	l2 := a.optionalFloat("l2-penalty", DefaultL2Penalty)
	stddev := a.optionalFloat("param-stddev", 1/math.Sqrt(float64(max(inputDim/max(numBlocks, 1), 1))))
	if err := a.done(); err != nil {
		return err
	}
	nc, err := NewBlockAffineComponent(lrate, l2, inputDim, outputDim, stddev, numBlocks, rng)
	if err != nil {
		return &ConfigError{Type: c.Type(), Key: "num-blocks", Details: err.Error()}
	}
	*c = *nc
	return nil
}

// Propagate applies each block to its own input slice, then adds the bias.
func (c *BlockAffineComponent) Propagate(in, out *mat.Dense) {
	rows := checkInput("BlockAffineComponent.Propagate", "input", in, c.InputDim())
	prepareOutput("BlockAffineComponent.Propagate", "output", out, rows, c.OutputDim())
	parallel.For(len(c.blocks), func(b int) {
		c.layout.outputCols(out, b).Mul(c.layout.inputCols(in, b), c.blocks[b].T())
	}, c.par)
	addBias(out, c.bias)
}

// Backprop computes in_deriv block by block using the receiver's parameters
// and, if toUpdate is non-nil, applies the AffineComponent update rule to
// every block of toUpdate.
func (c *BlockAffineComponent) Backprop(inValue, _, outDeriv *mat.Dense, toUpdate Component, inDeriv *mat.Dense) {
	const op = "BlockAffineComponent.Backprop"
	rows := checkInput(op, "out_deriv", outDeriv, c.OutputDim())
	prepareOutput(op, "in_deriv", inDeriv, rows, c.InputDim())
	parallel.For(len(c.blocks), func(b int) {
		c.layout.inputCols(inDeriv, b).Mul(c.layout.outputCols(outDeriv, b), c.blocks[b])
	}, c.par)

	if toUpdate == nil {
		return
	}
	target := mustSameType[*BlockAffineComponent](op, toUpdate)
	checkShape(op, "in_value", inValue, rows, c.InputDim())
	if len(target.blocks) != len(c.blocks) {
		panic(fmt.Sprintf("%s: update target has %d blocks, expected %d", op, len(target.blocks), len(c.blocks)))
	}

	grads := make([]*mat.Dense, len(c.blocks))
	parallel.For(len(c.blocks), func(b int) {
		grads[b] = linearGradient(c.layout.inputCols(inValue, b), c.layout.outputCols(outDeriv, b))
	}, c.par)
	target.applyGradient(grads, columnSum(outDeriv))
}

func (c *BlockAffineComponent) applyGradient(grads []*mat.Dense, gradBias *mat.VecDense) {
	shrink := 1 - c.learningRate*c.l2Penalty
	parallel.For(len(c.blocks), func(b int) {
		if c.l2Penalty != 0 {
			c.blocks[b].Scale(shrink, c.blocks[b])
		}
		addScaledDense("BlockAffineComponent.Backprop", c.blocks[b], c.learningRate, grads[b])
	}, c.par)
	c.bias.AddScaledVec(c.bias, c.learningRate, gradBias)
}

// SetZero zeroes the parameters; see Updatable.
func (c *BlockAffineComponent) SetZero(treatAsGradient bool) {
	if treatAsGradient {
		c.setGradientMode()
	}
	for _, m := range c.blocks {
		m.Zero()
	}
	c.bias.Zero()
}

// DotProduct returns the sum over blocks of <M_b, M'_b> plus <b, b'>.
func (c *BlockAffineComponent) DotProduct(other Updatable) float64 {
	const op = "BlockAffineComponent.DotProduct"
	o := mustSameType[*BlockAffineComponent](op, other)
	if len(o.blocks) != len(c.blocks) {
		panic(fmt.Sprintf("%s: %d blocks vs %d", op, len(c.blocks), len(o.blocks)))
	}
	sum := vecDot(op, c.bias, o.bias)
	for b := range c.blocks {
		sum += denseDot(op, c.blocks[b], o.blocks[b])
	}
	return sum
}

// PerturbParams adds Gaussian noise to every parameter.
func (c *BlockAffineComponent) PerturbParams(stddev float64, rng *rand.Rand) {
	for _, m := range c.blocks {
		perturbDense(m, stddev, rng)
	}
	perturbVec(c.bias, stddev, rng)
}

// Scale multiplies every parameter by alpha.
func (c *BlockAffineComponent) Scale(alpha float64) {
	for _, m := range c.blocks {
		m.Scale(alpha, m)
	}
	c.bias.ScaleVec(alpha, c.bias)
}

// Add adds alpha times other's parameters.
func (c *BlockAffineComponent) Add(alpha float64, other Updatable) {
	const op = "BlockAffineComponent.Add"
	o := mustSameType[*BlockAffineComponent](op, other)
	if len(o.blocks) != len(c.blocks) || o.bias.Len() != c.bias.Len() {
		panic(fmt.Sprintf("%s: parameter shape mismatch", op))
	}
	for b := range c.blocks {
		addScaledDense(op, c.blocks[b], alpha, o.blocks[b])
	}
	c.bias.AddScaledVec(c.bias, alpha, o.bias)
}

// NumParams returns the number of block weights plus OutputDim.
func (c *BlockAffineComponent) NumParams() int {
	return c.layout.numParams() + c.bias.Len()
}

// Read reads the component. Blocks are stored stacked vertically.
func (c *BlockAffineComponent) Read(r *kio.Reader) error {
	if err := readHeader(r, c.Type()); err != nil {
		return err
	}
	if err := c.readHyperParams(r); err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	numBlocks, err := readIntField(r, "<NumBlocks>")
	if err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	stacked, err := readMatrixField(r, "<LinearParams>")
	if err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	bias, err := readVectorField(r, "<BiasParams>")
	if err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	if err := readFooter(r, c.Type()); err != nil {
		return err
	}

	blocks, err := splitStacked(stacked, numBlocks)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	if rows, _ := stacked.Dims(); bias.IsEmpty() || bias.Len() != rows {
		return fmt.Errorf("%s: %w: bias does not match %d output rows", c.Type(), ErrDimensionMismatch, rows)
	}
	*c = *newBlockAffine(c.learningRate, c.l2Penalty, blocks, bias)
	return nil
}

// Write writes the component.
func (c *BlockAffineComponent) Write(w *kio.Writer) error {
	w.WriteToken("<BlockAffineComponent>")
	c.writeHyperParams(w)
	w.WriteToken("<NumBlocks>")
	w.WriteInt(len(c.blocks))
	w.WriteToken("<LinearParams>")
	w.WriteMatrix(stackBlocks(c.blocks))
	w.WriteToken("<BiasParams>")
	w.WriteVector(c.bias)
	w.WriteToken("</BlockAffineComponent>")
	return w.Err()
}

// Copy returns a deep copy.
func (c *BlockAffineComponent) Copy() Component {
	nc := newBlockAffine(c.learningRate, c.l2Penalty, copyBlocks(c.blocks), mat.VecDenseCopyOf(c.bias))
	nc.par = c.par
	return nc
}

// Info returns a one-line description.
func (c *BlockAffineComponent) Info() string {
	return fmt.Sprintf("%s, input-dim=%d, output-dim=%d, num-blocks=%d, learning-rate=%g, l2-penalty=%g",
		c.Type(), c.InputDim(), c.OutputDim(), len(c.blocks), c.learningRate, c.l2Penalty)
}
