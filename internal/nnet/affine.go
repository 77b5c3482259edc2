package nnet

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/nnet/internal/kio"
	"gonum.org/v1/gonum/mat"
)

// AffineComponent is a dense linear map plus an offset:
//
//	out[row] = W · in[row] + b
//
// where W has shape (OutputDim x InputDim) and b has length OutputDim.
type AffineComponent struct {
	updatableBase
	linear *mat.Dense    // [output_dim, input_dim]
	bias   *mat.VecDense // [output_dim]
}

// NewAffineComponent creates an AffineComponent with weights drawn from
// N(0, paramStddev^2) and a zero bias.
//
// Parameters:
//   - learningRate, l2Penalty: SGD hyperparameters
//   - inputDim, outputDim: dimensions, both positive
//   - paramStddev: standard deviation of the initial weights
//   - rng: random source, or nil for the global source
func NewAffineComponent(learningRate, l2Penalty float64, inputDim, outputDim int, paramStddev float64, rng *rand.Rand) *AffineComponent {
	if inputDim <= 0 || outputDim <= 0 {
		panic(fmt.Sprintf("NewAffineComponent: dimensions must be positive, got %dx%d", outputDim, inputDim))
	}
	return &AffineComponent{
		updatableBase: updatableBase{learningRate: learningRate, l2Penalty: l2Penalty},
		linear:        randomDense(outputDim, inputDim, paramStddev, rng),
		bias:          mat.NewVecDense(outputDim, nil),
	}
}

// NewAffineComponentFromParams creates an AffineComponent that owns copies of
// the given weights and bias. bias may be nil for a zero bias.
func NewAffineComponentFromParams(learningRate, l2Penalty float64, linear *mat.Dense, bias *mat.VecDense) (*AffineComponent, error) {
	if linear == nil || linear.IsEmpty() {
		return nil, fmt.Errorf("%w: empty linear parameters", ErrBadParams)
	}
	rows, _ := linear.Dims()
	b := mat.NewVecDense(rows, nil)
	if bias != nil {
		if bias.Len() != rows {
			return nil, fmt.Errorf("%w: bias length %d, expected %d", ErrDimensionMismatch, bias.Len(), rows)
		}
		b.CopyVec(bias)
	}
	return &AffineComponent{
		updatableBase: updatableBase{learningRate: learningRate, l2Penalty: l2Penalty},
		linear:        mat.DenseCopyOf(linear),
		bias:          b,
	}, nil
}

// Type returns "AffineComponent".
func (c *AffineComponent) Type() string { return "AffineComponent" }

// InputDim returns the number of columns of W.
func (c *AffineComponent) InputDim() int {
	if c.linear == nil {
		return 0
	}
	_, cols := c.linear.Dims()
	return cols
}

// OutputDim returns the number of rows of W.
func (c *AffineComponent) OutputDim() int {
	if c.linear == nil {
		return 0
	}
	rows, _ := c.linear.Dims()
	return rows
}

// LinearParams returns the weight matrix. The caller must not modify it.
func (c *AffineComponent) LinearParams() *mat.Dense { return c.linear }

// BiasParams returns the bias vector. The caller must not modify it.
func (c *AffineComponent) BiasParams() *mat.VecDense { return c.bias }

// BackpropNeedsInput reports true: the weight gradient uses the input.
func (c *AffineComponent) BackpropNeedsInput() bool { return true }

// BackpropNeedsOutput reports false.
func (c *AffineComponent) BackpropNeedsOutput() bool { return false }

// InitFromString recognizes input-dim, output-dim (required), learning-rate,
// l2-penalty and param-stddev (default 1/sqrt(input-dim)).
func (c *AffineComponent) InitFromString(args string, rng *rand.Rand) error {
	a, err := parseArgs(c.Type(), args)
	if err != nil {
		return err
	}
	inputDim := a.requiredInt("input-dim")
	outputDim := a.requiredInt("output-dim")
	a.positiveInt("input-dim", inputDim)
	a.positiveInt("output-dim", outputDim)
	lrate := a.optionalFloat("learning-rate", DefaultLearningRate)
	l2 := a.optionalFloat("l2-penalty", DefaultL2Penalty)
	stddev := a.optionalFloat("param-stddev", 1/math.Sqrt(float64(max(inputDim, 1))))
	if err := a.done(); err != nil {
		return err
	}
	*c = *NewAffineComponent(lrate, l2, inputDim, outputDim, stddev, rng)
	return nil
}

// Propagate computes out = in · Wᵀ + 1 · bᵀ.
func (c *AffineComponent) Propagate(in, out *mat.Dense) {
	rows := checkInput("AffineComponent.Propagate", "input", in, c.InputDim())
	prepareOutput("AffineComponent.Propagate", "output", out, rows, c.OutputDim())
	out.Mul(in, c.linear.T())
	addBias(out, c.bias)
}

// Backprop computes in_deriv = out_deriv · W using the receiver's parameters,
// then, if toUpdate is non-nil, applies
//
//	W ← (1 - η·λ)·W + η · out_derivᵀ · in_value
//	b ← b + η · colsum(out_deriv)
//
// to toUpdate, where η and λ are toUpdate's learning rate and L2 penalty.
func (c *AffineComponent) Backprop(inValue, _, outDeriv *mat.Dense, toUpdate Component, inDeriv *mat.Dense) {
	const op = "AffineComponent.Backprop"
	rows := checkInput(op, "out_deriv", outDeriv, c.OutputDim())
	prepareOutput(op, "in_deriv", inDeriv, rows, c.InputDim())
	inDeriv.Mul(outDeriv, c.linear)

	if toUpdate == nil {
		return
	}
	target := mustSameType[*AffineComponent](op, toUpdate)
	checkShape(op, "in_value", inValue, rows, c.InputDim())
	target.applyGradient(linearGradient(inValue, outDeriv), columnSum(outDeriv))
}

// linearGradient returns the raw gradient of a linear map for one batch,
// out_derivᵀ · in_value.
func linearGradient(inValue, outDeriv *mat.Dense) *mat.Dense {
	var grad mat.Dense
	grad.Mul(outDeriv.T(), inValue)
	return &grad
}

// applyGradient applies an SGD step with weight decay to the parameters.
func (c *AffineComponent) applyGradient(gradLinear *mat.Dense, gradBias *mat.VecDense) {
	if c.l2Penalty != 0 {
		c.linear.Scale(1-c.learningRate*c.l2Penalty, c.linear)
	}
	addScaledDense("AffineComponent.Backprop", c.linear, c.learningRate, gradLinear)
	c.bias.AddScaledVec(c.bias, c.learningRate, gradBias)
}

// SetZero zeroes the parameters; see Updatable.
func (c *AffineComponent) SetZero(treatAsGradient bool) {
	if treatAsGradient {
		c.setGradientMode()
	}
	c.linear.Zero()
	c.bias.Zero()
}

// DotProduct returns <W, W'> + <b, b'>.
func (c *AffineComponent) DotProduct(other Updatable) float64 {
	const op = "AffineComponent.DotProduct"
	o := mustSameType[*AffineComponent](op, other)
	return denseDot(op, c.linear, o.linear) + vecDot(op, c.bias, o.bias)
}

// PerturbParams adds Gaussian noise to every weight and bias.
func (c *AffineComponent) PerturbParams(stddev float64, rng *rand.Rand) {
	perturbDense(c.linear, stddev, rng)
	perturbVec(c.bias, stddev, rng)
}

// Scale multiplies the weights and bias by alpha.
func (c *AffineComponent) Scale(alpha float64) {
	c.linear.Scale(alpha, c.linear)
	c.bias.ScaleVec(alpha, c.bias)
}

// Add adds alpha times other's parameters.
func (c *AffineComponent) Add(alpha float64, other Updatable) {
	const op = "AffineComponent.Add"
	o := mustSameType[*AffineComponent](op, other)
	addScaledDense(op, c.linear, alpha, o.linear)
	if c.bias.Len() != o.bias.Len() {
		panic(fmt.Sprintf("%s: bias length mismatch %d vs %d", op, c.bias.Len(), o.bias.Len()))
	}
	c.bias.AddScaledVec(c.bias, alpha, o.bias)
}

// NumParams returns OutputDim·InputDim + OutputDim.
func (c *AffineComponent) NumParams() int {
	return c.OutputDim()*c.InputDim() + c.OutputDim()
}

// Read reads the component.
func (c *AffineComponent) Read(r *kio.Reader) error {
	if err := readHeader(r, c.Type()); err != nil {
		return err
	}
	if err := c.readHyperParams(r); err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	linear, err := readMatrixField(r, "<LinearParams>")
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
	if linear.IsEmpty() {
		return fmt.Errorf("%s: %w: empty linear parameters", c.Type(), ErrBadParams)
	}
	if rows, _ := linear.Dims(); bias.IsEmpty() || bias.Len() != rows {
		return fmt.Errorf("%s: %w: bias does not match %d output rows", c.Type(), ErrDimensionMismatch, rows)
	}
	c.linear = linear
	c.bias = bias
	return nil
}

// Write writes the component.
func (c *AffineComponent) Write(w *kio.Writer) error {
	w.WriteToken("<AffineComponent>")
	c.writeHyperParams(w)
	w.WriteToken("<LinearParams>")
	w.WriteMatrix(c.linear)
	w.WriteToken("<BiasParams>")
	w.WriteVector(c.bias)
	w.WriteToken("</AffineComponent>")
	return w.Err()
}

// Copy returns a deep copy.
func (c *AffineComponent) Copy() Component {
	return &AffineComponent{
		updatableBase: c.updatableBase,
		linear:        mat.DenseCopyOf(c.linear),
		bias:          mat.VecDenseCopyOf(c.bias),
	}
}

// Info returns a one-line description.
func (c *AffineComponent) Info() string {
	return fmt.Sprintf("%s, input-dim=%d, output-dim=%d, learning-rate=%g, l2-penalty=%g, param-stddev=%.4g",
		c.Type(), c.InputDim(), c.OutputDim(), c.learningRate, c.l2Penalty, paramStddev(c.linear))
}

// paramStddev returns the root-mean-square of the elements of m.
func paramStddev(m *mat.Dense) float64 {
	rows, cols := m.Dims()
	if rows*cols == 0 {
		return 0
	}
	return mat.Norm(m, 2) / math.Sqrt(float64(rows*cols))
}
