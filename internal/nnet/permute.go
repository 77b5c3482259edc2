package nnet

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/born-ml/nnet/internal/kio"
	"gonum.org/v1/gonum/mat"
)

// PermuteComponent reorders dimensions: input column i is written to output
// column reorder[i]. It has no trainable parameters.
type PermuteComponent struct {
	reorder []int
}

// NewPermuteComponent creates a PermuteComponent with a uniformly random
// permutation of dim elements. rng may be nil to use the global source.
func NewPermuteComponent(dim int, rng *rand.Rand) *PermuteComponent {
	if dim <= 0 {
		panic(fmt.Sprintf("NewPermuteComponent: dimension must be positive, got %d", dim))
	}
	var reorder []int
	if rng == nil {
		reorder = rand.Perm(dim)
	} else {
		reorder = rng.Perm(dim)
	}
	return &PermuteComponent{reorder: reorder}
}

// NewPermuteComponentFromReorder creates a PermuteComponent from an explicit
// mapping, which must be a permutation of 0..len(reorder)-1.
func NewPermuteComponentFromReorder(reorder []int) (*PermuteComponent, error) {
	if err := checkPermutation(reorder); err != nil {
		return nil, err
	}
	return &PermuteComponent{reorder: slices.Clone(reorder)}, nil
}

// checkPermutation reports whether reorder is a bijection on 0..n-1.
func checkPermutation(reorder []int) error {
	if len(reorder) == 0 {
		return fmt.Errorf("%w: empty", ErrBadPermutation)
	}
	seen := make([]bool, len(reorder))
	for i, v := range reorder {
		if v < 0 || v >= len(reorder) {
			return fmt.Errorf("%w: element %d maps to %d, outside [0, %d)", ErrBadPermutation, i, v, len(reorder))
		}
		if seen[v] {
			return fmt.Errorf("%w: %d appears twice", ErrBadPermutation, v)
		}
		seen[v] = true
	}
	return nil
}

// Type returns "PermuteComponent".
func (c *PermuteComponent) Type() string { return "PermuteComponent" }

// InputDim returns the permutation length.
func (c *PermuteComponent) InputDim() int { return len(c.reorder) }

// OutputDim returns the permutation length.
func (c *PermuteComponent) OutputDim() int { return len(c.reorder) }

// Reorder returns a copy of the mapping.
func (c *PermuteComponent) Reorder() []int { return slices.Clone(c.reorder) }

// BackpropNeedsInput reports false.
func (c *PermuteComponent) BackpropNeedsInput() bool { return false }

// BackpropNeedsOutput reports false.
func (c *PermuteComponent) BackpropNeedsOutput() bool { return false }

// InitFromString recognizes either dim=N for a random permutation or an
// explicit reorder=2,0,1, but not both.
func (c *PermuteComponent) InitFromString(args string, rng *rand.Rand) error {
	a, err := parseArgs(c.Type(), args)
	if err != nil {
		return err
	}
	switch {
	case a.has("dim") && a.has("reorder"):
		return &ConfigError{Type: c.Type(), Details: "dim and reorder are mutually exclusive"}
	case a.has("reorder"):
		reorder := a.requiredInts("reorder", ",")
		if err := a.done(); err != nil {
			return err
		}
		nc, err := NewPermuteComponentFromReorder(reorder)
		if err != nil {
			return &ConfigError{Type: c.Type(), Key: "reorder", Details: err.Error()}
		}
		*c = *nc
	default:
		dim := a.requiredInt("dim")
		a.positiveInt("dim", dim)
		if err := a.done(); err != nil {
			return err
		}
		*c = *NewPermuteComponent(dim, rng)
	}
	return nil
}

// Propagate computes out[:, reorder[i]] = in[:, i].
func (c *PermuteComponent) Propagate(in, out *mat.Dense) {
	rows := checkInput("PermuteComponent.Propagate", "input", in, len(c.reorder))
	prepareOutput("PermuteComponent.Propagate", "output", out, rows, len(c.reorder))
	for r := 0; r < rows; r++ {
		src := in.RawRowView(r)
		dst := out.RawRowView(r)
		for i, j := range c.reorder {
			dst[j] = src[i]
		}
	}
}

// Backprop computes in_deriv[:, i] = out_deriv[:, reorder[i]]. The update
// target is ignored.
func (c *PermuteComponent) Backprop(_, _, outDeriv *mat.Dense, _ Component, inDeriv *mat.Dense) {
	rows := checkInput("PermuteComponent.Backprop", "out_deriv", outDeriv, len(c.reorder))
	prepareOutput("PermuteComponent.Backprop", "in_deriv", inDeriv, rows, len(c.reorder))
	for r := 0; r < rows; r++ {
		src := outDeriv.RawRowView(r)
		dst := inDeriv.RawRowView(r)
		for i, j := range c.reorder {
			dst[i] = src[j]
		}
	}
}

// Read reads the component.
func (c *PermuteComponent) Read(r *kio.Reader) error {
	if err := readHeader(r, c.Type()); err != nil {
		return err
	}
	if err := r.ExpectToken("<Reorder>"); err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	reorder, err := r.ReadInts()
	if err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	if err := readFooter(r, c.Type()); err != nil {
		return err
	}
	if err := checkPermutation(reorder); err != nil {
		return fmt.Errorf("%s: %w", c.Type(), err)
	}
	c.reorder = reorder
	return nil
}

// Write writes the component.
func (c *PermuteComponent) Write(w *kio.Writer) error {
	w.WriteToken("<PermuteComponent>")
	w.WriteToken("<Reorder>")
	w.WriteInts(c.reorder)
	w.WriteToken("</PermuteComponent>")
	return w.Err()
}

// Copy returns a deep copy.
func (c *PermuteComponent) Copy() Component {
	return &PermuteComponent{reorder: slices.Clone(c.reorder)}
}

// Info returns a one-line description.
func (c *PermuteComponent) Info() string {
	return fmt.Sprintf("%s, dim=%d", c.Type(), len(c.reorder))
}
