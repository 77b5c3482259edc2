package nnet

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"

	"github.com/born-ml/nnet/internal/kio"
)

// factories maps a type tag to a constructor of an empty component of that
// type. It is populated once and never modified.
var factories = map[string]func() Component{
	"SigmoidComponent":     func() Component { return &SigmoidComponent{} },
	"TanhComponent":        func() Component { return &TanhComponent{} },
	"SoftmaxComponent":     func() Component { return &SoftmaxComponent{} },
	"AffineComponent":      func() Component { return &AffineComponent{} },
	"BlockAffineComponent": func() Component { return &BlockAffineComponent{} },
	"MixtureProbComponent": func() Component { return &MixtureProbComponent{} },
	"PermuteComponent":     func() Component { return &PermuteComponent{} },
}

// NewByType returns an empty component for a type tag.
func NewByType(typ string) (Component, error) {
	f, ok := factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, typ)
	}
	return f(), nil
}

// RegisteredTypes returns the known type tags in sorted order.
func RegisteredTypes() []string {
	types := make([]string, 0, len(factories))
	for typ := range factories {
		types = append(types, typ)
	}
	slices.Sort(types)
	return types
}

// ReadNew reads one component record of any registered type. The opening
// tag selects the type and is left in the stream for the component's Read.
func ReadNew(r *kio.Reader) (Component, error) {
	tok, err := r.PeekToken()
	if err != nil {
		return nil, err
	}
	typ, ok := strings.CutPrefix(tok, "<")
	if ok {
		typ, ok = strings.CutSuffix(typ, ">")
	}
	if !ok || strings.HasPrefix(typ, "/") {
		return nil, fmt.Errorf("%w: %q is not an opening tag", ErrUnknownComponent, tok)
	}
	c, err := NewByType(typ)
	if err != nil {
		return nil, err
	}
	if err := c.Read(r); err != nil {
		return nil, err
	}
	return c, nil
}

// NewFromString creates a component from one configuration line such as
//
//	AffineComponent input-dim=10 output-dim=20 learning-rate=0.01
//
// The first field is the type tag; the rest is passed to InitFromString.
func NewFromString(line string, rng *rand.Rand) (Component, error) {
	line = strings.TrimSpace(line)
	typ, args := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		typ, args = line[:i], line[i:]
	}
	if typ == "" {
		return nil, &ConfigError{Details: "empty component line"}
	}
	c, err := NewByType(typ)
	if err != nil {
		return nil, err
	}
	if err := c.InitFromString(args, rng); err != nil {
		return nil, err
	}
	return c, nil
}

// CheckChain verifies that each component's output dimension equals the
// next component's input dimension.
func CheckChain(components []Component) error {
	for i := 1; i < len(components); i++ {
		prev, next := components[i-1], components[i]
		if prev.OutputDim() != next.InputDim() {
			return fmt.Errorf("%w: component %d (%s) outputs %d, component %d (%s) expects %d",
				ErrDimensionMismatch, i-1, prev.Type(), prev.OutputDim(), i, next.Type(), next.InputDim())
		}
	}
	return nil
}
