package nnet

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/nnet/internal/kio"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Default hyperparameters for InitFromString.
const (
	DefaultLearningRate = 0.001
	DefaultL2Penalty    = 0.0
	DefaultDiagElement  = 0.9
)

// Updatable is a Component with trainable parameters.
//
// Optimization drivers use the parameter algebra (DotProduct, Scale, Add,
// PerturbParams, SetZero) without knowing the concrete layer type. The
// other argument of DotProduct and Add must have the same concrete type and
// parameter shapes as the receiver; anything else panics.
type Updatable interface {
	Component

	// LearningRate returns the step size used by Backprop updates.
	LearningRate() float64
	SetLearningRate(lrate float64)

	// L2Penalty returns the weight-decay constant.
	L2Penalty() float64
	SetL2Penalty(l2 float64)

	// SetZero zeroes all parameters. With treatAsGradient the component
	// becomes a gradient store: learning rate 1, L2 penalty 0, and any
	// parameter constraints are suspended.
	SetZero(treatAsGradient bool)

	// DotProduct returns the inner product of the two parameter sets.
	DotProduct(other Updatable) float64

	// PerturbParams adds zero-mean Gaussian noise with the given standard
	// deviation to every parameter.
	PerturbParams(stddev float64, rng *rand.Rand)

	// Scale multiplies every parameter by alpha.
	Scale(alpha float64)

	// Add adds alpha times the parameters of other.
	Add(alpha float64, other Updatable)

	// NumParams returns the number of trainable scalars.
	NumParams() int
}

// updatableBase holds the SGD hyperparameters shared by every updatable
// component.
type updatableBase struct {
	learningRate float64 // learning rate (0.0..0.01)
	l2Penalty    float64 // L2 regularization constant (0.0..1e-4)
}

// LearningRate returns the learning rate.
func (u *updatableBase) LearningRate() float64 { return u.learningRate }

// SetLearningRate sets the learning rate.
func (u *updatableBase) SetLearningRate(lrate float64) { u.learningRate = lrate }

// L2Penalty returns the L2 penalty.
func (u *updatableBase) L2Penalty() float64 { return u.l2Penalty }

// SetL2Penalty sets the L2 penalty.
func (u *updatableBase) SetL2Penalty(l2 float64) { u.l2Penalty = l2 }

func (u *updatableBase) setGradientMode() {
	u.learningRate = 1
	u.l2Penalty = 0
}

func (u *updatableBase) readHyperParams(r *kio.Reader) error {
	var err error
	if u.learningRate, err = readFloatField(r, "<LearningRate>"); err != nil {
		return err
	}
	if u.l2Penalty, err = readFloatField(r, "<L2Penalty>"); err != nil {
		return err
	}
	return nil
}

func (u *updatableBase) writeHyperParams(w *kio.Writer) {
	w.WriteToken("<LearningRate>")
	w.WriteFloat(u.learningRate)
	w.WriteToken("<L2Penalty>")
	w.WriteFloat(u.l2Penalty)
}

// gaussian draws from N(0, 1) using rng, or the global source if rng is nil.
func gaussian(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.NormFloat64()
	}
	return rng.NormFloat64()
}

// randomDense returns a rows x cols matrix with entries drawn from
// N(0, stddev^2).
func randomDense(rows, cols int, stddev float64, rng *rand.Rand) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = stddev * gaussian(rng)
	}
	return mat.NewDense(rows, cols, data)
}

// perturbDense adds N(0, stddev^2) noise to every element of m.
func perturbDense(m *mat.Dense, stddev float64, rng *rand.Rand) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		for j := range row {
			row[j] += stddev * gaussian(rng)
		}
	}
}

func perturbVec(v *mat.VecDense, stddev float64, rng *rand.Rand) {
	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, v.AtVec(i)+stddev*gaussian(rng))
	}
}

// denseDot returns sum_ij a_ij * b_ij. The shapes must match.
func denseDot(op string, a, b *mat.Dense) float64 {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(fmt.Sprintf("%s: parameter shape mismatch %dx%d vs %dx%d", op, ar, ac, br, bc))
	}
	sum := 0.0
	for i := 0; i < ar; i++ {
		sum += floats.Dot(a.RawRowView(i), b.RawRowView(i))
	}
	return sum
}

// vecDot returns the inner product of two equal-length vectors.
func vecDot(op string, a, b *mat.VecDense) float64 {
	if a.Len() != b.Len() {
		panic(fmt.Sprintf("%s: parameter length mismatch %d vs %d", op, a.Len(), b.Len()))
	}
	return mat.Dot(a, b)
}

// addScaledDense performs dst += alpha * src. The shapes must match.
func addScaledDense(op string, dst *mat.Dense, alpha float64, src *mat.Dense) {
	dr, dc := dst.Dims()
	sr, sc := src.Dims()
	if dr != sr || dc != sc {
		panic(fmt.Sprintf("%s: parameter shape mismatch %dx%d vs %dx%d", op, dr, dc, sr, sc))
	}
	for i := 0; i < dr; i++ {
		floats.AddScaled(dst.RawRowView(i), alpha, src.RawRowView(i))
	}
}

// addBias adds bias to every row of out.
func addBias(out *mat.Dense, bias *mat.VecDense) {
	b := bias.RawVector().Data
	rows, _ := out.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(out.RawRowView(i), b)
	}
}

// columnSum returns the sum of the rows of m.
func columnSum(m *mat.Dense) *mat.VecDense {
	rows, cols := m.Dims()
	sum := make([]float64, cols)
	for i := 0; i < rows; i++ {
		floats.Add(sum, m.RawRowView(i))
	}
	return mat.NewVecDense(cols, sum)
}

// mustSameType asserts that other has the concrete type T.
func mustSameType[T Component](op string, other Component) T {
	o, ok := other.(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("%s: expected %T, got %T", op, zero, other))
	}
	return o
}
