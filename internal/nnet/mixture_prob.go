package nnet

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/nnet/internal/kio"
	"github.com/born-ml/nnet/internal/parallel"
	"gonum.org/v1/gonum/mat"
)

// simplexTolerance is how far a column sum may drift from 1 in a model
// read from disk.
const simplexTolerance = 1e-4

// MixtureProbComponent is a linear map that transforms probabilities while
// preserving the sum-to-one constraint; it follows a softmax.
//
// The transform is a block matrix whose blocks need not be square: block b
// has shape (outRows_b x inCols_b) and maps input columns of that block to
// output columns of that block. Every column of every block is a probability
// distribution (nonnegative, summing to 1), so total probability mass is
// preserved. Blocks start square and may become non-square as mixtures are
// split ("mixed up").
//
// A component zeroed with SetZero(true) is a gradient store: its blocks hold
// raw gradient accumulations and the constraint is suspended.
type MixtureProbComponent struct {
	updatableBase
	params     []*mat.Dense // per-block column-stochastic matrices
	layout     blockLayout
	isGradient bool
	par        parallel.Config
}

// NewMixtureProbComponent creates one square block per entry of sizes. A
// block of size s has diagElement on the diagonal and (1-diagElement)/(s-1)
// elsewhere, so every column sums to 1.
func NewMixtureProbComponent(learningRate, l2Penalty, diagElement float64, sizes []int) (*MixtureProbComponent, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: no block sizes", ErrBadParams)
	}
	if diagElement < 0 || diagElement > 1 {
		return nil, fmt.Errorf("%w: diag-element %g outside [0, 1]", ErrBadParams, diagElement)
	}
	params := make([]*mat.Dense, len(sizes))
	for b, s := range sizes {
		if s <= 0 {
			return nil, fmt.Errorf("%w: block %d has size %d", ErrBadParams, b, s)
		}
		m := mat.NewDense(s, s, nil)
		if s == 1 {
			m.Set(0, 0, 1)
		} else {
			off := (1 - diagElement) / float64(s-1)
			for i := 0; i < s; i++ {
				for j := 0; j < s; j++ {
					if i == j {
						m.Set(i, j, diagElement)
					} else {
						m.Set(i, j, off)
					}
				}
			}
		}
		params[b] = m
	}
	return newMixtureProb(learningRate, l2Penalty, params, false), nil
}

// NewMixtureProbComponentFromBlocks creates a MixtureProbComponent owning
// copies of the given blocks. Every column must be a probability
// distribution.
func NewMixtureProbComponentFromBlocks(learningRate, l2Penalty float64, blocks []*mat.Dense) (*MixtureProbComponent, error) {
	if err := validateMixtureBlocks(blocks, true); err != nil {
		return nil, err
	}
	return newMixtureProb(learningRate, l2Penalty, copyBlocks(blocks), false), nil
}

func newMixtureProb(learningRate, l2Penalty float64, params []*mat.Dense, isGradient bool) *MixtureProbComponent {
	return &MixtureProbComponent{
		updatableBase: updatableBase{learningRate: learningRate, l2Penalty: l2Penalty},
		params:        params,
		layout:        newBlockLayout(params),
		isGradient:    isGradient,
		par:           parallel.DefaultConfig(),
	}
}

func validateMixtureBlocks(blocks []*mat.Dense, stochastic bool) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: no blocks", ErrBadParams)
	}
	for b, m := range blocks {
		if m == nil || m.IsEmpty() {
			return fmt.Errorf("%w: block %d is empty", ErrBadParams, b)
		}
		if !stochastic {
			continue
		}
		rows, cols := m.Dims()
		for j := 0; j < cols; j++ {
			sum := 0.0
			for i := 0; i < rows; i++ {
				v := m.At(i, j)
				if v < 0 {
					return fmt.Errorf("%w: block %d has negative entry %g at (%d, %d)", ErrBadParams, b, v, i, j)
				}
				sum += v
			}
			if math.Abs(sum-1) > simplexTolerance {
				return fmt.Errorf("%w: block %d column %d sums to %g", ErrBadParams, b, j, sum)
			}
		}
	}
	return nil
}

// Type returns "MixtureProbComponent".
func (c *MixtureProbComponent) Type() string { return "MixtureProbComponent" }

// InputDim returns the total number of block columns.
func (c *MixtureProbComponent) InputDim() int {
	if c.params == nil {
		return 0
	}
	return c.layout.inputDim()
}

// OutputDim returns the total number of block rows.
func (c *MixtureProbComponent) OutputDim() int {
	if c.params == nil {
		return 0
	}
	return c.layout.outputDim()
}

// NumBlocks returns the number of blocks.
func (c *MixtureProbComponent) NumBlocks() int { return len(c.params) }

// Block returns block b. The caller must not modify it.
func (c *MixtureProbComponent) Block(b int) *mat.Dense { return c.params[b] }

// IsGradient reports whether the component is a gradient store.
func (c *MixtureProbComponent) IsGradient() bool { return c.isGradient }

// SetParallel sets how per-block work is spread over goroutines.
func (c *MixtureProbComponent) SetParallel(cfg parallel.Config) { c.par = cfg }

// BackpropNeedsInput reports true.
func (c *MixtureProbComponent) BackpropNeedsInput() bool { return true }

// BackpropNeedsOutput reports false.
func (c *MixtureProbComponent) BackpropNeedsOutput() bool { return false }

// InitFromString recognizes dims (required, colon separated block sizes such
// as dims=4:4:8), diag-element, learning-rate and l2-penalty.
func (c *MixtureProbComponent) InitFromString(args string, _ *rand.Rand) error {
	a, err := parseArgs(c.Type(), args)
	if err != nil {
		return err
	}
	sizes := a.requiredInts("dims", ":")
	diag := a.optionalFloat("diag-element", DefaultDiagElement)
	lrate := a.optionalFloat("learning-rate", DefaultLearningRate)
	l2 := a.optionalFloat("l2-penalty", DefaultL2Penalty)
	if err := a.done(); err != nil {
		return err
	}
	nc, err := NewMixtureProbComponent(lrate, l2, diag, sizes)
	if err != nil {
		return &ConfigError{Type: c.Type(), Details: err.Error()}
	}
	*c = *nc
	return nil
}

// Propagate computes out_b = in_b · P_bᵀ for every block.
func (c *MixtureProbComponent) Propagate(in, out *mat.Dense) {
	rows := checkInput("MixtureProbComponent.Propagate", "input", in, c.InputDim())
	prepareOutput("MixtureProbComponent.Propagate", "output", out, rows, c.OutputDim())
	parallel.For(len(c.params), func(b int) {
		c.layout.outputCols(out, b).Mul(c.layout.inputCols(in, b), c.params[b].T())
	}, c.par)
}

// Backprop computes in_deriv_b = out_deriv_b · P_b for every block. If
// toUpdate is non-nil, it receives the block gradients out_deriv_bᵀ · in_b;
// unless toUpdate is a gradient store, each gradient is first projected so
// that every column sums to zero, and after the step every column is
// clipped to be nonnegative and renormalized to sum to 1.
func (c *MixtureProbComponent) Backprop(inValue, _, outDeriv *mat.Dense, toUpdate Component, inDeriv *mat.Dense) {
	const op = "MixtureProbComponent.Backprop"
	rows := checkInput(op, "out_deriv", outDeriv, c.OutputDim())
	prepareOutput(op, "in_deriv", inDeriv, rows, c.InputDim())
	parallel.For(len(c.params), func(b int) {
		c.layout.inputCols(inDeriv, b).Mul(c.layout.outputCols(outDeriv, b), c.params[b])
	}, c.par)

	if toUpdate == nil {
		return
	}
	target := mustSameType[*MixtureProbComponent](op, toUpdate)
	checkShape(op, "in_value", inValue, rows, c.InputDim())
	if len(target.params) != len(c.params) {
		panic(fmt.Sprintf("%s: update target has %d blocks, expected %d", op, len(target.params), len(c.params)))
	}

	grads := make([]*mat.Dense, len(c.params))
	parallel.For(len(c.params), func(b int) {
		grads[b] = linearGradient(c.layout.inputCols(inValue, b), c.layout.outputCols(outDeriv, b))
	}, c.par)
	target.applyGradient(grads)
}

// applyGradient performs one constrained step with the block gradients.
func (c *MixtureProbComponent) applyGradient(grads []*mat.Dense) {
	parallel.For(len(c.params), func(b int) {
		if c.isGradient {
			addScaledDense("MixtureProbComponent.Backprop", c.params[b], c.learningRate, grads[b])
			return
		}
		projectToTangent(grads[b])
		addScaledDense("MixtureProbComponent.Backprop", c.params[b], c.learningRate, grads[b])
		normalizeColumns(c.params[b])
	}, c.par)
}

// projectToTangent subtracts from each column of g its mean, so that a step
// along g leaves every column sum unchanged.
func projectToTangent(g *mat.Dense) {
	rows, cols := g.Dims()
	for j := 0; j < cols; j++ {
		mean := 0.0
		for i := 0; i < rows; i++ {
			mean += g.At(i, j)
		}
		mean /= float64(rows)
		for i := 0; i < rows; i++ {
			g.Set(i, j, g.At(i, j)-mean)
		}
	}
}

// normalizeColumns clips negative entries to zero and rescales every column
// to sum to 1. A column with no positive mass becomes uniform.
func normalizeColumns(p *mat.Dense) {
	rows, cols := p.Dims()
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			v := math.Max(p.At(i, j), 0)
			p.Set(i, j, v)
			sum += v
		}
		for i := 0; i < rows; i++ {
			if sum > 0 {
				p.Set(i, j, p.At(i, j)/sum)
			} else {
				p.Set(i, j, 1/float64(rows))
			}
		}
	}
}

// MixUp splits the mixture component at input column col: the column is
// duplicated in place, so its block gains one input column and InputDim
// grows by one. The component feeding this one must grow to match; use
// MixUpChain to split a whole Affine, Softmax, MixtureProb stack.
func (c *MixtureProbComponent) MixUp(col int) {
	b, j := c.layout.blockOfInput(col)
	old := c.params[b]
	rows, cols := old.Dims()
	grown := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		src := old.RawRowView(i)
		dst := grown.RawRowView(i)
		copy(dst[:j+1], src[:j+1])
		copy(dst[j+1:], src[j:])
	}
	c.params[b] = grown
	c.layout = newBlockLayout(c.params)
}

// SetZero zeroes the parameters; see Updatable.
func (c *MixtureProbComponent) SetZero(treatAsGradient bool) {
	if treatAsGradient {
		c.setGradientMode()
		c.isGradient = true
	}
	for _, m := range c.params {
		m.Zero()
	}
}

// DotProduct returns the sum over blocks of <P_b, P'_b>.
func (c *MixtureProbComponent) DotProduct(other Updatable) float64 {
	const op = "MixtureProbComponent.DotProduct"
	o := mustSameType[*MixtureProbComponent](op, other)
	if len(o.params) != len(c.params) {
		panic(fmt.Sprintf("%s: %d blocks vs %d", op, len(c.params), len(o.params)))
	}
	sum := 0.0
	for b := range c.params {
		sum += denseDot(op, c.params[b], o.params[b])
	}
	return sum
}

// PerturbParams adds Gaussian noise to every entry. Unless the component is
// a gradient store, the columns are then projected back onto the simplex.
func (c *MixtureProbComponent) PerturbParams(stddev float64, rng *rand.Rand) {
	for _, m := range c.params {
		perturbDense(m, stddev, rng)
		if !c.isGradient {
			normalizeColumns(m)
		}
	}
}

// Scale multiplies every entry by alpha. The result is only a valid
// probability table for alpha == 1 or when used as a gradient store.
func (c *MixtureProbComponent) Scale(alpha float64) {
	for _, m := range c.params {
		m.Scale(alpha, m)
	}
}

// Add adds alpha times other's entries, with the same caveat as Scale.
func (c *MixtureProbComponent) Add(alpha float64, other Updatable) {
	const op = "MixtureProbComponent.Add"
	o := mustSameType[*MixtureProbComponent](op, other)
	if len(o.params) != len(c.params) {
		panic(fmt.Sprintf("%s: %d blocks vs %d", op, len(c.params), len(o.params)))
	}
	for b := range c.params {
		addScaledDense(op, c.params[b], alpha, o.params[b])
	}
}

// NumParams returns the total number of block entries.
func (c *MixtureProbComponent) NumParams() int { return c.layout.numParams() }

// Read reads the component.
func (c *MixtureProbComponent) Read(r *kio.Reader) error {
	if err := readHeader(r, c.Type()); err != nil {
		return err
	}
	if err := c.readHyperParams(r); err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	isGradient, err := readBoolField(r, "<IsGradient>")
	if err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	numBlocks, err := readIntField(r, "<NumBlocks>")
	if err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	if numBlocks <= 0 {
		return fmt.Errorf("%s: %w: %d blocks", c.Type(), ErrBadParams, numBlocks)
	}
	// Blocks are appended as they arrive so a corrupt count cannot force a
	// large allocation.
	var params []*mat.Dense
	for b := 0; b < numBlocks; b++ {
		m, err := readMatrixField(r, "<Block>")
		if err != nil {
			return fmt.Errorf("%s: block %d: %w", c.Type(), b, err)
		}
		params = append(params, m)
	}
	if err := readFooter(r, c.Type()); err != nil {
		return err
	}
	if err := validateMixtureBlocks(params, !isGradient); err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	*c = *newMixtureProb(c.learningRate, c.l2Penalty, params, isGradient)
	return nil
}

// Write writes the component.
func (c *MixtureProbComponent) Write(w *kio.Writer) error {
	w.WriteToken("<MixtureProbComponent>")
	c.writeHyperParams(w)
	w.WriteToken("<IsGradient>")
	w.WriteBool(c.isGradient)
	w.WriteToken("<NumBlocks>")
	w.WriteInt(len(c.params))
	for _, m := range c.params {
		w.WriteToken("<Block>")
		w.WriteMatrix(m)
	}
	w.WriteToken("</MixtureProbComponent>")
	return w.Err()
}

// Copy returns a deep copy.
func (c *MixtureProbComponent) Copy() Component {
	nc := newMixtureProb(c.learningRate, c.l2Penalty, copyBlocks(c.params), c.isGradient)
	nc.par = c.par
	return nc
}

// Info returns a one-line description.
func (c *MixtureProbComponent) Info() string {
	return fmt.Sprintf("%s, input-dim=%d, output-dim=%d, num-blocks=%d, learning-rate=%g, is-gradient=%t",
		c.Type(), c.InputDim(), c.OutputDim(), len(c.params), c.learningRate, c.isGradient)
}
