// Package train drives nnet component chains: forward and backward passes,
// the log-probability objective, minibatch SGD, and shrinkage of parameter
// scales against held-out data.
//
// All layer math lives in the components; this package only sequences the
// calls and owns the activation buffers.
package train

import (
	"fmt"
	"math"

	"github.com/born-ml/nnet/internal/nnet"
	"gonum.org/v1/gonum/mat"
)

// probFloor bounds probabilities away from zero in the objective.
const probFloor = 1e-20

// Forward propagates in through the chain and returns every activation:
// acts[0] is in and acts[i+1] is the output of components[i].
func Forward(components []nnet.Component, in *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, len(components)+1)
	acts[0] = in
	for i, c := range components {
		var out mat.Dense
		c.Propagate(acts[i], &out)
		acts[i+1] = &out
	}
	return acts
}

// Backward propagates outDeriv from the end of the chain to its input and
// returns the derivative with respect to acts[0].
//
// targets selects the update target of each component: nil for no updates
// at all, or a slice parallel to components whose entries may be nil
// (skip), the component itself (in-place SGD) or a gradient store.
func Backward(components []nnet.Component, acts []*mat.Dense, outDeriv *mat.Dense, targets []nnet.Component) *mat.Dense {
	if len(acts) != len(components)+1 {
		panic(fmt.Sprintf("train.Backward: %d activations for %d components", len(acts), len(components)))
	}
	if targets != nil && len(targets) != len(components) {
		panic(fmt.Sprintf("train.Backward: %d targets for %d components", len(targets), len(components)))
	}
	deriv := outDeriv
	for i := len(components) - 1; i >= 0; i-- {
		var target nnet.Component
		if targets != nil {
			target = targets[i]
		}
		var inDeriv mat.Dense
		components[i].Backprop(acts[i], acts[i+1], deriv, target, &inDeriv)
		deriv = &inDeriv
	}
	return deriv
}

// LogProbDeriv returns the objective sum_r log out[r, labels[r]] and its
// derivative with respect to out. Probabilities are floored at 1e-20.
func LogProbDeriv(out *mat.Dense, labels []int) (float64, *mat.Dense) {
	rows, cols := out.Dims()
	if rows != len(labels) {
		panic(fmt.Sprintf("train.LogProbDeriv: %d rows but %d labels", rows, len(labels)))
	}
	deriv := mat.NewDense(rows, cols, nil)
	obj := 0.0
	for r, l := range labels {
		p := math.Max(out.At(r, l), probFloor)
		obj += math.Log(p)
		deriv.Set(r, l, 1/p)
	}
	return obj, deriv
}

// logProb returns sum_r log out[r, labels[r]].
func logProb(out *mat.Dense, labels []int) float64 {
	obj := 0.0
	for r, l := range labels {
		obj += math.Log(math.Max(out.At(r, l), probFloor))
	}
	return obj
}

// updatables returns the indices of the components that have trainable
// parameters.
func updatables(components []nnet.Component) []int {
	var idx []int
	for i, c := range components {
		if _, ok := c.(nnet.Updatable); ok {
			idx = append(idx, i)
		}
	}
	return idx
}
