package nnet

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/nnet/internal/kio"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// nonlinearBase is the dimension-only state shared by the parameter-free
// nonlinearities. Input and output dimensions are equal.
type nonlinearBase struct {
	dim int
}

// InputDim returns the dimension.
func (n *nonlinearBase) InputDim() int { return n.dim }

// OutputDim returns the dimension.
func (n *nonlinearBase) OutputDim() int { return n.dim }

// BackpropNeedsInput reports false: nonlinearities differentiate through
// their output.
func (n *nonlinearBase) BackpropNeedsInput() bool { return false }

// BackpropNeedsOutput reports true.
func (n *nonlinearBase) BackpropNeedsOutput() bool { return true }

func (n *nonlinearBase) initFromString(typ, args string) error {
	a, err := parseArgs(typ, args)
	if err != nil {
		return err
	}
	dim := a.requiredInt("dim")
	a.positiveInt("dim", dim)
	if err := a.done(); err != nil {
		return err
	}
	n.dim = dim
	return nil
}

func (n *nonlinearBase) read(r *kio.Reader, typ string) error {
	if err := readHeader(r, typ); err != nil {
		return err
	}
	dim, err := readIntField(r, "<Dim>")
	if err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}
	if dim < 0 {
		return fmt.Errorf("%s: %w: negative dimension %d", typ, ErrBadParams, dim)
	}
	if err := readFooter(r, typ); err != nil {
		return err
	}
	n.dim = dim
	return nil
}

func (n *nonlinearBase) write(w *kio.Writer, typ string) error {
	w.WriteToken("<" + typ + ">")
	w.WriteToken("<Dim>")
	w.WriteInt(n.dim)
	w.WriteToken("</" + typ + ">")
	return w.Err()
}

func (n *nonlinearBase) info(typ string) string {
	return fmt.Sprintf("%s, dim=%d", typ, n.dim)
}

// checkBackprop validates the buffers of a needs-output-only backward pass
// and sizes inDeriv. Returns the number of rows.
func (n *nonlinearBase) checkBackprop(op string, outValue, outDeriv, inDeriv *mat.Dense) int {
	rows := checkInput(op, "out_deriv", outDeriv, n.dim)
	checkShape(op, "out_value", outValue, rows, n.dim)
	prepareOutput(op, "in_deriv", inDeriv, rows, n.dim)
	return rows
}

// SigmoidComponent applies the logistic function element-wise:
// y = 1 / (1 + exp(-x)).
type SigmoidComponent struct {
	nonlinearBase
}

// NewSigmoidComponent creates a SigmoidComponent of the given dimension.
func NewSigmoidComponent(dim int) *SigmoidComponent {
	return &SigmoidComponent{nonlinearBase{dim: dim}}
}

// Type returns "SigmoidComponent".
func (c *SigmoidComponent) Type() string { return "SigmoidComponent" }

// InitFromString recognizes dim=N.
func (c *SigmoidComponent) InitFromString(args string, _ *rand.Rand) error {
	return c.initFromString(c.Type(), args)
}

// Propagate computes y = 1 / (1 + exp(-x)).
func (c *SigmoidComponent) Propagate(in, out *mat.Dense) {
	rows := checkInput("SigmoidComponent.Propagate", "input", in, c.dim)
	prepareOutput("SigmoidComponent.Propagate", "output", out, rows, c.dim)
	out.Apply(func(_, _ int, v float64) float64 {
		return 1 / (1 + math.Exp(-v))
	}, in)
}

// Backprop computes in_deriv = out_deriv * y * (1 - y).
func (c *SigmoidComponent) Backprop(_, outValue, outDeriv *mat.Dense, _ Component, inDeriv *mat.Dense) {
	c.checkBackprop("SigmoidComponent.Backprop", outValue, outDeriv, inDeriv)
	inDeriv.Apply(func(i, j int, d float64) float64 {
		y := outValue.At(i, j)
		return d * y * (1 - y)
	}, outDeriv)
}

// Read reads the component.
func (c *SigmoidComponent) Read(r *kio.Reader) error { return c.read(r, c.Type()) }

// Write writes the component.
func (c *SigmoidComponent) Write(w *kio.Writer) error { return c.write(w, c.Type()) }

// Copy returns a deep copy.
func (c *SigmoidComponent) Copy() Component { return NewSigmoidComponent(c.dim) }

// Info returns a one-line description.
func (c *SigmoidComponent) Info() string { return c.info(c.Type()) }

// TanhComponent applies the hyperbolic tangent element-wise.
type TanhComponent struct {
	nonlinearBase
}

// NewTanhComponent creates a TanhComponent of the given dimension.
func NewTanhComponent(dim int) *TanhComponent {
	return &TanhComponent{nonlinearBase{dim: dim}}
}

// Type returns "TanhComponent".
func (c *TanhComponent) Type() string { return "TanhComponent" }

// InitFromString recognizes dim=N.
func (c *TanhComponent) InitFromString(args string, _ *rand.Rand) error {
	return c.initFromString(c.Type(), args)
}

// Propagate computes y = tanh(x).
func (c *TanhComponent) Propagate(in, out *mat.Dense) {
	rows := checkInput("TanhComponent.Propagate", "input", in, c.dim)
	prepareOutput("TanhComponent.Propagate", "output", out, rows, c.dim)
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Tanh(v)
	}, in)
}

// Backprop computes in_deriv = out_deriv * (1 - y^2).
func (c *TanhComponent) Backprop(_, outValue, outDeriv *mat.Dense, _ Component, inDeriv *mat.Dense) {
	c.checkBackprop("TanhComponent.Backprop", outValue, outDeriv, inDeriv)
	inDeriv.Apply(func(i, j int, d float64) float64 {
		y := outValue.At(i, j)
		return d * (1 - y*y)
	}, outDeriv)
}

// Read reads the component.
func (c *TanhComponent) Read(r *kio.Reader) error { return c.read(r, c.Type()) }

// Write writes the component.
func (c *TanhComponent) Write(w *kio.Writer) error { return c.write(w, c.Type()) }

// Copy returns a deep copy.
func (c *TanhComponent) Copy() Component { return NewTanhComponent(c.dim) }

// Info returns a one-line description.
func (c *TanhComponent) Info() string { return c.info(c.Type()) }

// SoftmaxComponent normalizes each row into a probability distribution:
// y_j = exp(x_j) / sum_k exp(x_k).
type SoftmaxComponent struct {
	nonlinearBase
}

// NewSoftmaxComponent creates a SoftmaxComponent of the given dimension.
func NewSoftmaxComponent(dim int) *SoftmaxComponent {
	return &SoftmaxComponent{nonlinearBase{dim: dim}}
}

// Type returns "SoftmaxComponent".
func (c *SoftmaxComponent) Type() string { return "SoftmaxComponent" }

// InitFromString recognizes dim=N.
func (c *SoftmaxComponent) InitFromString(args string, _ *rand.Rand) error {
	return c.initFromString(c.Type(), args)
}

// Propagate computes the row-wise softmax. The row maximum is subtracted
// before exponentiation so large inputs cannot overflow.
func (c *SoftmaxComponent) Propagate(in, out *mat.Dense) {
	rows := checkInput("SoftmaxComponent.Propagate", "input", in, c.dim)
	prepareOutput("SoftmaxComponent.Propagate", "output", out, rows, c.dim)
	for i := 0; i < rows; i++ {
		y := out.RawRowView(i)
		copy(y, in.RawRowView(i))
		floats.AddConst(-floats.Max(y), y)
		for j := range y {
			y[j] = math.Exp(y[j])
		}
		floats.Scale(1/floats.Sum(y), y)
	}
}

// Backprop computes in_deriv_j = y_j * (out_deriv_j - sum_k out_deriv_k * y_k).
func (c *SoftmaxComponent) Backprop(_, outValue, outDeriv *mat.Dense, _ Component, inDeriv *mat.Dense) {
	rows := c.checkBackprop("SoftmaxComponent.Backprop", outValue, outDeriv, inDeriv)
	for i := 0; i < rows; i++ {
		y := outValue.RawRowView(i)
		d := outDeriv.RawRowView(i)
		dot := floats.Dot(d, y)
		dst := inDeriv.RawRowView(i)
		for j := range dst {
			dst[j] = y[j] * (d[j] - dot)
		}
	}
}

// Read reads the component.
func (c *SoftmaxComponent) Read(r *kio.Reader) error { return c.read(r, c.Type()) }

// Write writes the component.
func (c *SoftmaxComponent) Write(w *kio.Writer) error { return c.write(w, c.Type()) }

// Copy returns a deep copy.
func (c *SoftmaxComponent) Copy() Component { return NewSoftmaxComponent(c.dim) }

// Info returns a one-line description.
func (c *SoftmaxComponent) Info() string { return c.info(c.Type()) }
