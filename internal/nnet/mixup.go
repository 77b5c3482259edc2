package nnet

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// MixUpChain splits mixture input col of components[index] together with
// the layers that feed it. components[index] must be a MixtureProbComponent
// preceded by a SoftmaxComponent and an AffineComponent.
//
// The affine output row for col is duplicated and both copies have their
// bias lowered by log 2, so the softmax shares the old probability equally
// between them and the mixture, whose column is duplicated too, produces
// the same output as before. With perturbStddev > 0 the two rows are then
// pushed apart by opposite Gaussian noise so training can separate them.
//
// The Softmax is replaced by a wider one; the Affine and MixtureProb are
// modified in place.
func MixUpChain(components []Component, index, col int, perturbStddev float64, rng *rand.Rand) error {
	if index < 2 || index >= len(components) {
		return fmt.Errorf("%w: mix-up index %d needs an Affine and a Softmax before it", ErrBadParams, index)
	}
	mixture, ok := components[index].(*MixtureProbComponent)
	if !ok {
		return fmt.Errorf("%w: component %d is %s, not MixtureProbComponent", ErrBadParams, index, components[index].Type())
	}
	softmax, ok := components[index-1].(*SoftmaxComponent)
	if !ok {
		return fmt.Errorf("%w: component %d is %s, not SoftmaxComponent", ErrBadParams, index-1, components[index-1].Type())
	}
	affine, ok := components[index-2].(*AffineComponent)
	if !ok {
		return fmt.Errorf("%w: component %d is %s, not AffineComponent", ErrBadParams, index-2, components[index-2].Type())
	}
	if col < 0 || col >= mixture.InputDim() {
		return fmt.Errorf("%w: mix-up column %d out of range [0, %d)", ErrBadParams, col, mixture.InputDim())
	}
	if err := CheckChain(components[index-2 : index+1]); err != nil {
		return err
	}

	affine.splitOutput(col, perturbStddev, rng)
	components[index-1] = NewSoftmaxComponent(softmax.dim + 1)
	mixture.MixUp(col)
	return nil
}

// splitOutput duplicates output row row at row+1 and lowers the bias of
// both copies by log 2.
func (c *AffineComponent) splitOutput(row int, perturbStddev float64, rng *rand.Rand) {
	rows, cols := c.linear.Dims()
	linear := mat.NewDense(rows+1, cols, nil)
	bias := mat.NewVecDense(rows+1, nil)
	for i := 0; i <= rows; i++ {
		src := i
		if i > row {
			src = i - 1
		}
		linear.SetRow(i, c.linear.RawRowView(src))
		bias.SetVec(i, c.bias.AtVec(src))
	}
	half := c.bias.AtVec(row) - math.Ln2
	bias.SetVec(row, half)
	bias.SetVec(row+1, half)

	if perturbStddev > 0 {
		a, b := linear.RawRowView(row), linear.RawRowView(row+1)
		for j := range a {
			d := perturbStddev * gaussian(rng)
			a[j] += d
			b[j] -= d
		}
	}
	c.linear = linear
	c.bias = bias
}
