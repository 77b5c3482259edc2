// Package egs stores labelled training examples for the nnet training
// tools.
//
// An archive is a kio token stream holding a sequence of records
//
//	<Example> <Input> matrix <Labels> ints </Example>
//
// until end of stream. Each input row is one frame; Labels holds the target
// pdf index of every frame.
package egs

import (
	"errors"
	"fmt"
	"io"

	"github.com/born-ml/nnet/internal/kio"
	"gonum.org/v1/gonum/mat"
)

// ErrBadExample reports an example whose labels do not match its input.
var ErrBadExample = errors.New("invalid example")

// Example is a block of frames with one label per frame.
type Example struct {
	Input  *mat.Dense
	Labels []int
}

// NumFrames returns the number of frames.
func (e *Example) NumFrames() int {
	return len(e.Labels)
}

// Validate checks that there is one non-negative label per input row and,
// if numPdfs > 0, that every label is below numPdfs.
func (e *Example) Validate(numPdfs int) error {
	if e.Input == nil || e.Input.IsEmpty() {
		return fmt.Errorf("%w: empty input", ErrBadExample)
	}
	rows, _ := e.Input.Dims()
	if rows != len(e.Labels) {
		return fmt.Errorf("%w: %d frames but %d labels", ErrBadExample, rows, len(e.Labels))
	}
	for i, l := range e.Labels {
		if l < 0 || (numPdfs > 0 && l >= numPdfs) {
			return fmt.Errorf("%w: frame %d has label %d", ErrBadExample, i, l)
		}
	}
	return nil
}

// Read reads one example record.
func (e *Example) Read(r *kio.Reader) error {
	if err := r.ExpectToken("<Example>"); err != nil {
		return err
	}
	if err := r.ExpectToken("<Input>"); err != nil {
		return err
	}
	input, err := r.ReadMatrix()
	if err != nil {
		return err
	}
	if err := r.ExpectToken("<Labels>"); err != nil {
		return err
	}
	labels, err := r.ReadInts()
	if err != nil {
		return err
	}
	if err := r.ExpectToken("</Example>"); err != nil {
		return err
	}
	ex := Example{Input: input, Labels: labels}
	if err := ex.Validate(0); err != nil {
		return err
	}
	*e = ex
	return nil
}

// Write writes one example record.
func (e *Example) Write(w *kio.Writer) error {
	w.WriteToken("<Example>")
	w.WriteToken("<Input>")
	w.WriteMatrix(e.Input)
	w.WriteToken("<Labels>")
	w.WriteInts(e.Labels)
	w.WriteToken("</Example>")
	return w.Err()
}

// Reader streams examples from an archive.
type Reader struct {
	r *kio.Reader
	n int
}

// NewReader creates a Reader on r.
func NewReader(r io.Reader) (*Reader, error) {
	kr, err := kio.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{r: kr}, nil
}

// Next returns the next example, or io.EOF after the last one.
func (r *Reader) Next() (*Example, error) {
	if r.r.AtEOF() {
		return nil, io.EOF
	}
	var e Example
	if err := e.Read(r.r); err != nil {
		return nil, fmt.Errorf("example %d: %w", r.n, err)
	}
	r.n++
	return &e, nil
}

// ReadAll reads every example in the archive at path.
func ReadAll(path string) ([]*Example, error) {
	var out []*Example
	err := kio.ReadFile(path, func(kr *kio.Reader) error {
		r := &Reader{r: kr}
		for {
			e, err := r.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			out = append(out, e)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read examples %s: %w", path, err)
	}
	return out, nil
}

// WriteAll writes examples to path in the given mode.
func WriteAll(path string, binary bool, examples []*Example) error {
	err := kio.WriteFile(path, binary, func(w *kio.Writer) error {
		for i, e := range examples {
			if err := e.Write(w); err != nil {
				return fmt.Errorf("example %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write examples %s: %w", path, err)
	}
	return nil
}

// TotalFrames returns the number of frames over all examples.
func TotalFrames(examples []*Example) int {
	n := 0
	for _, e := range examples {
		n += e.NumFrames()
	}
	return n
}
