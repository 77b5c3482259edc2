// Package nnet implements the layered transforms ("components") that make up
// a feed-forward acoustic model.
//
// This package provides:
//   - Component: the capability every layer implements (Propagate, Backprop,
//     dimensions, serialization, deep copy)
//   - Updatable: components with trainable parameters, a learning rate and
//     an L2 penalty, plus the parameter algebra used by optimization drivers
//   - Nonlinearities: SigmoidComponent, TanhComponent, SoftmaxComponent
//   - Linear maps: AffineComponent, BlockAffineComponent, MixtureProbComponent
//   - PermuteComponent: a fixed reordering of dimensions
//   - A read-only factory (ReadNew, NewFromString) keyed by type tag
//
// Batches are gonum matrices with one row per frame. The derivatives passed
// to Backprop are derivatives of an objective that training maximizes, so
// parameter updates add the gradient.
package nnet

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/nnet/internal/kio"
	"gonum.org/v1/gonum/mat"
)

// Component is a box with fixed input and output dimensions that transforms
// a batch of row vectors and propagates derivatives back through itself.
//
// Propagate and Backprop panic on shape violations; these are contract
// errors in the caller, not recoverable conditions. An output matrix passed
// to either may be empty, in which case it is sized by the call, or already
// have exactly the required shape.
type Component interface {
	// Type returns the serialization tag, e.g. "SigmoidComponent".
	Type() string

	// InputDim returns the number of columns Propagate expects.
	InputDim() int

	// OutputDim returns the number of columns Propagate produces.
	OutputDim() int

	// InitFromString initializes the component from the key=value arguments
	// of one configuration line. rng may be nil to use the global source.
	InitFromString(args string, rng *rand.Rand) error

	// Propagate computes out from in; each row is one frame.
	Propagate(in, out *mat.Dense)

	// Backprop computes inDeriv from outDeriv. If toUpdate is non-nil and
	// the component is updatable, toUpdate (which may be the receiver) also
	// receives a parameter update. inValue and outValue may be nil when
	// BackpropNeedsInput and BackpropNeedsOutput report false.
	Backprop(inValue, outValue, outDeriv *mat.Dense, toUpdate Component, inDeriv *mat.Dense)

	// BackpropNeedsInput reports whether Backprop reads inValue.
	BackpropNeedsInput() bool

	// BackpropNeedsOutput reports whether Backprop reads outValue.
	BackpropNeedsOutput() bool

	// Read reads a full record, including the opening and closing tags.
	Read(r *kio.Reader) error

	// Write writes a full record.
	Write(w *kio.Writer) error

	// Copy returns an independent deep copy.
	Copy() Component

	// Info returns a one-line description for diagnostics.
	Info() string
}

// checkInput panics unless in has cols columns and at least one row.
// Returns the number of rows.
func checkInput(op, what string, in *mat.Dense, cols int) int {
	if in == nil || in.IsEmpty() {
		panic(fmt.Sprintf("%s: %s is empty", op, what))
	}
	r, c := in.Dims()
	if c != cols {
		panic(fmt.Sprintf("%s: expected %s with %d columns, got %d", op, what, cols, c))
	}
	return r
}

// checkShape panics unless m is rows x cols.
func checkShape(op, what string, m *mat.Dense, rows, cols int) {
	if m == nil || m.IsEmpty() {
		panic(fmt.Sprintf("%s: %s is empty", op, what))
	}
	r, c := m.Dims()
	if r != rows || c != cols {
		panic(fmt.Sprintf("%s: expected %s of shape %dx%d, got %dx%d", op, what, rows, cols, r, c))
	}
}

// prepareOutput sizes an empty out to rows x cols, or panics unless it
// already has that shape.
func prepareOutput(op, what string, out *mat.Dense, rows, cols int) {
	if out == nil {
		panic(fmt.Sprintf("%s: %s is nil", op, what))
	}
	if out.IsEmpty() {
		out.ReuseAs(rows, cols)
		return
	}
	checkShape(op, what, out, rows, cols)
}

// readHeader reads the opening tag of a record.
func readHeader(r *kio.Reader, tag string) error {
	return r.ExpectToken("<" + tag + ">")
}

// readFooter reads the closing tag of a record.
func readFooter(r *kio.Reader, tag string) error {
	return r.ExpectToken("</" + tag + ">")
}

func readIntField(r *kio.Reader, name string) (int, error) {
	if err := r.ExpectToken(name); err != nil {
		return 0, err
	}
	return r.ReadInt()
}

func readFloatField(r *kio.Reader, name string) (float64, error) {
	if err := r.ExpectToken(name); err != nil {
		return 0, err
	}
	return r.ReadFloat()
}

func readBoolField(r *kio.Reader, name string) (bool, error) {
	if err := r.ExpectToken(name); err != nil {
		return false, err
	}
	return r.ReadBool()
}

func readMatrixField(r *kio.Reader, name string) (*mat.Dense, error) {
	if err := r.ExpectToken(name); err != nil {
		return nil, err
	}
	return r.ReadMatrix()
}

func readVectorField(r *kio.Reader, name string) (*mat.VecDense, error) {
	if err := r.ExpectToken(name); err != nil {
		return nil, err
	}
	return r.ReadVector()
}
