// Package am reads and writes acoustic-model files: a transition model, a
// chain of nnet components, and optional class priors.
//
// File layout (kio token stream, binary or text):
//
//	<TransitionModel> <NumPdfs> n <Payload> blob </TransitionModel>
//	<Nnet> <NumComponents> n <Components> component... </Components> </Nnet>
//	<Priors> vector
//
// The transition model is carried through unchanged; this package does not
// interpret its payload.
package am

import (
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/nnet/internal/kio"
	"github.com/born-ml/nnet/internal/nnet"
	"gonum.org/v1/gonum/mat"
)

// maxComponents bounds NumComponents read from a file.
const maxComponents = 1 << 16

// TransitionModel is the opaque state-to-pdf mapping stored ahead of the
// network.
type TransitionModel struct {
	NumPdfs int    // Number of network outputs the mapping refers to, 0 if unknown.
	Payload []byte // Raw mapping data.
}

// Read reads a TransitionModel record.
func (tm *TransitionModel) Read(r *kio.Reader) error {
	if err := r.ExpectToken("<TransitionModel>"); err != nil {
		return err
	}
	if err := r.ExpectToken("<NumPdfs>"); err != nil {
		return err
	}
	numPdfs, err := r.ReadInt()
	if err != nil {
		return err
	}
	if numPdfs < 0 {
		return fmt.Errorf("%w: negative pdf count %d", ErrPdfMismatch, numPdfs)
	}
	if err := r.ExpectToken("<Payload>"); err != nil {
		return err
	}
	payload, err := r.ReadBytes()
	if err != nil {
		return err
	}
	if err := r.ExpectToken("</TransitionModel>"); err != nil {
		return err
	}
	tm.NumPdfs = numPdfs
	tm.Payload = payload
	return nil
}

// Write writes a TransitionModel record.
func (tm *TransitionModel) Write(w *kio.Writer) error {
	w.WriteToken("<TransitionModel>")
	w.WriteToken("<NumPdfs>")
	w.WriteInt(tm.NumPdfs)
	w.WriteToken("<Payload>")
	w.WriteBytes(tm.Payload)
	w.WriteToken("</TransitionModel>")
	return w.Err()
}

// AmNnet is a neural-network acoustic model.
type AmNnet struct {
	Transition TransitionModel
	Components []nnet.Component
	Priors     *mat.VecDense // nil or empty, or one prior per output
}

// New creates an AmNnet from a component chain. If tm.NumPdfs is zero it
// is set to the chain's output dimension.
func New(tm TransitionModel, components []nnet.Component) (*AmNnet, error) {
	if tm.NumPdfs == 0 && len(components) > 0 {
		tm.NumPdfs = components[len(components)-1].OutputDim()
	}
	a := &AmNnet{Transition: tm, Components: components}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// InputDim returns the input dimension of the first component.
func (a *AmNnet) InputDim() int {
	if len(a.Components) == 0 {
		return 0
	}
	return a.Components[0].InputDim()
}

// OutputDim returns the output dimension of the last component.
func (a *AmNnet) OutputDim() int {
	if len(a.Components) == 0 {
		return 0
	}
	return a.Components[len(a.Components)-1].OutputDim()
}

// NumParams returns the number of trainable parameters.
func (a *AmNnet) NumParams() int {
	n := 0
	for _, c := range a.Components {
		if u, ok := c.(nnet.Updatable); ok {
			n += u.NumParams()
		}
	}
	return n
}

// Validate checks that the chain is non-empty and consistent, and that the
// pdf count and priors match the output dimension.
func (a *AmNnet) Validate() error {
	if len(a.Components) == 0 {
		return ErrEmptyModel
	}
	if err := nnet.CheckChain(a.Components); err != nil {
		return err
	}
	if a.Transition.NumPdfs != 0 && a.Transition.NumPdfs != a.OutputDim() {
		return fmt.Errorf("%w: %d pdfs, output dimension %d", ErrPdfMismatch, a.Transition.NumPdfs, a.OutputDim())
	}
	if a.Priors != nil && !a.Priors.IsEmpty() && a.Priors.Len() != a.OutputDim() {
		return fmt.Errorf("%w: %d priors, output dimension %d", ErrBadPriors, a.Priors.Len(), a.OutputDim())
	}
	return nil
}

// SetPriors replaces the priors. Every entry must be positive.
func (a *AmNnet) SetPriors(priors *mat.VecDense) error {
	if priors.Len() != a.OutputDim() {
		return fmt.Errorf("%w: %d priors, output dimension %d", ErrBadPriors, priors.Len(), a.OutputDim())
	}
	for i := 0; i < priors.Len(); i++ {
		if priors.AtVec(i) <= 0 {
			return fmt.Errorf("%w: prior %d is %g", ErrBadPriors, i, priors.AtVec(i))
		}
	}
	a.Priors = mat.VecDenseCopyOf(priors)
	return nil
}

// Read reads a model and validates it.
func (a *AmNnet) Read(r *kio.Reader) error {
	var tm TransitionModel
	if err := tm.Read(r); err != nil {
		return fmt.Errorf("transition model: %w", err)
	}
	components, err := readNnet(r)
	if err != nil {
		return fmt.Errorf("nnet: %w", err)
	}
	if err := r.ExpectToken("<Priors>"); err != nil {
		return err
	}
	priors, err := r.ReadVector()
	if err != nil {
		return fmt.Errorf("priors: %w", err)
	}

	m := AmNnet{Transition: tm, Components: components, Priors: priors}
	if err := m.Validate(); err != nil {
		return err
	}
	*a = m
	return nil
}

func readNnet(r *kio.Reader) ([]nnet.Component, error) {
	if err := r.ExpectToken("<Nnet>"); err != nil {
		return nil, err
	}
	if err := r.ExpectToken("<NumComponents>"); err != nil {
		return nil, err
	}
	n, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxComponents {
		return nil, fmt.Errorf("%w: %d", ErrTooManyComponents, n)
	}
	if err := r.ExpectToken("<Components>"); err != nil {
		return nil, err
	}
	components := make([]nnet.Component, n)
	for i := range components {
		if components[i], err = nnet.ReadNew(r); err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
	}
	if err := r.ExpectToken("</Components>"); err != nil {
		return nil, err
	}
	if err := r.ExpectToken("</Nnet>"); err != nil {
		return nil, err
	}
	return components, nil
}

// Write writes the model.
func (a *AmNnet) Write(w *kio.Writer) error {
	if err := a.Transition.Write(w); err != nil {
		return err
	}
	w.WriteToken("<Nnet>")
	w.WriteToken("<NumComponents>")
	w.WriteInt(len(a.Components))
	w.WriteToken("<Components>")
	for i, c := range a.Components {
		if err := c.Write(w); err != nil {
			return fmt.Errorf("component %d (%s): %w", i, c.Type(), err)
		}
	}
	w.WriteToken("</Components>")
	w.WriteToken("</Nnet>")
	w.WriteToken("<Priors>")
	w.WriteVector(a.Priors)
	return w.Err()
}

// ReadFile reads a model from path; the mode is detected from the file.
func ReadFile(path string) (*AmNnet, error) {
	var a AmNnet
	if err := kio.ReadFile(path, a.Read); err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return &a, nil
}

// WriteFile writes the model to path in the given mode.
func (a *AmNnet) WriteFile(path string, binary bool) error {
	if err := kio.WriteFile(path, binary, a.Write); err != nil {
		return fmt.Errorf("failed to write model %s: %w", path, err)
	}
	return nil
}

// Copy returns a deep copy.
func (a *AmNnet) Copy() *AmNnet {
	components := make([]nnet.Component, len(a.Components))
	for i, c := range a.Components {
		components[i] = c.Copy()
	}
	cp := &AmNnet{
		Transition: TransitionModel{NumPdfs: a.Transition.NumPdfs, Payload: slices.Clone(a.Transition.Payload)},
		Components: components,
	}
	if a.Priors != nil && !a.Priors.IsEmpty() {
		cp.Priors = mat.VecDenseCopyOf(a.Priors)
	}
	return cp
}

// Info returns a multi-line description of the model.
func (a *AmNnet) Info() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "num-pdfs %d\n", a.Transition.NumPdfs)
	fmt.Fprintf(&sb, "input-dim %d\n", a.InputDim())
	fmt.Fprintf(&sb, "output-dim %d\n", a.OutputDim())
	fmt.Fprintf(&sb, "num-components %d\n", len(a.Components))
	fmt.Fprintf(&sb, "num-parameters %d\n", a.NumParams())
	for i, c := range a.Components {
		fmt.Fprintf(&sb, "component %d: %s\n", i, c.Info())
	}
	if a.Priors != nil && !a.Priors.IsEmpty() {
		fmt.Fprintf(&sb, "priors: %d entries\n", a.Priors.Len())
	}
	return sb.String()
}
