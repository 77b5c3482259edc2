package kio

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Writer writes a token stream in binary or text mode.
//
// Writes are buffered and the first error is sticky: once a write fails,
// later writes are no-ops and Err/Flush report the original failure. This
// keeps record writers free of per-field error checks.
type Writer struct {
	w      *bufio.Writer
	binary bool
	err    error
	buf    [8]byte
}

// NewWriter creates a Writer on w. In binary mode the stream header is
// written immediately.
func NewWriter(w io.Writer, binary bool) *Writer {
	kw := &Writer{
		w:      bufio.NewWriter(w),
		binary: binary,
	}
	if binary {
		kw.writeString(BinaryHeader)
	}
	return kw
}

// Binary reports whether the stream is in binary mode.
func (w *Writer) Binary() bool {
	return w.binary
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

// Flush writes any buffered data and returns the first error encountered.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.w.Flush(); err != nil {
		w.err = fmt.Errorf("failed to flush stream: %w", err)
	}
	return w.err
}

// WriteToken writes a token such as "<LearningRate>".
//
// In text mode closing tags ("</...>") end the current line.
func (w *Writer) WriteToken(tok string) {
	if tok == "" || strings.ContainsAny(tok, " \t\n\r") {
		w.fail(fmt.Errorf("%w: invalid token %q", ErrMalformed, tok))
		return
	}
	w.writeString(tok)
	if !w.binary && strings.HasPrefix(tok, "</") {
		w.writeByte('\n')
		return
	}
	w.writeByte(' ')
}

// WriteInt writes an integer as int32.
func (w *Writer) WriteInt(v int) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		w.fail(fmt.Errorf("%w: integer %d does not fit in int32", ErrTooLarge, v))
		return
	}
	if w.binary {
		w.writeByte(sizeInt32)
		w.writeRawInt32(int32(v))
		return
	}
	w.writeString(strconv.Itoa(v))
	w.writeByte(' ')
}

// WriteFloat writes a float64.
func (w *Writer) WriteFloat(v float64) {
	if w.binary {
		w.writeByte(sizeFloat64)
		w.writeRawFloat64(v)
		return
	}
	w.writeString(formatFloat(v))
	w.writeByte(' ')
}

// WriteBool writes a boolean as 'T' or 'F'.
func (w *Writer) WriteBool(v bool) {
	c := byte('F')
	if v {
		c = 'T'
	}
	w.writeByte(c)
	if !w.binary {
		w.writeByte(' ')
	}
}

// WriteVector writes a vector. A nil vector is written as empty.
func (w *Writer) WriteVector(v *mat.VecDense) {
	n := 0
	if v != nil && !v.IsEmpty() {
		n = v.Len()
	}
	if w.binary {
		w.WriteToken(tagDoubleVector)
		w.writeByte(sizeInt32)
		w.writeRawInt32(int32(n))
		for i := 0; i < n; i++ {
			w.writeRawFloat64(v.AtVec(i))
		}
		return
	}
	w.writeString("[ ")
	for i := 0; i < n; i++ {
		w.writeString(formatFloat(v.AtVec(i)))
		w.writeByte(' ')
	}
	w.writeString("]\n")
}

// WriteMatrix writes a matrix in row-major order.
func (w *Writer) WriteMatrix(m mat.Matrix) {
	rows, cols := 0, 0
	if m != nil {
		if d, ok := m.(*mat.Dense); !ok || !d.IsEmpty() {
			rows, cols = m.Dims()
		}
	}
	if w.binary {
		w.WriteToken(tagDoubleMatrix)
		w.writeByte(sizeInt32)
		w.writeRawInt32(int32(rows))
		w.writeByte(sizeInt32)
		w.writeRawInt32(int32(cols))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				w.writeRawFloat64(m.At(i, j))
			}
		}
		return
	}
	if rows == 0 {
		w.writeString("[ ]\n")
		return
	}
	w.writeString("[")
	for i := 0; i < rows; i++ {
		w.writeString("\n  ")
		for j := 0; j < cols; j++ {
			w.writeString(formatFloat(m.At(i, j)))
			w.writeByte(' ')
		}
	}
	w.writeString("]\n")
}

// WriteInts writes an integer vector.
func (w *Writer) WriteInts(v []int) {
	for _, x := range v {
		if x > math.MaxInt32 || x < math.MinInt32 {
			w.fail(fmt.Errorf("%w: integer %d does not fit in int32", ErrTooLarge, x))
			return
		}
	}
	if w.binary {
		w.writeByte(sizeInt32)
		w.writeRawInt32(int32(len(v)))
		for _, x := range v {
			w.writeRawInt32(int32(x))
		}
		return
	}
	w.writeString("[ ")
	for _, x := range v {
		w.writeString(strconv.Itoa(x))
		w.writeByte(' ')
	}
	w.writeString("]\n")
}

// WriteBytes writes an opaque byte payload.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteInt(len(b))
	if len(b) == 0 {
		return
	}
	if w.binary {
		w.write(b)
		return
	}
	w.writeString(hex.EncodeToString(b))
	w.writeByte(' ')
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = fmt.Errorf("failed to write stream: %w", err)
	}
}

func (w *Writer) writeString(s string) {
	if w.err != nil {
		return
	}
	if _, err := w.w.WriteString(s); err != nil {
		w.err = fmt.Errorf("failed to write stream: %w", err)
	}
}

func (w *Writer) writeByte(c byte) {
	if w.err != nil {
		return
	}
	if err := w.w.WriteByte(c); err != nil {
		w.err = fmt.Errorf("failed to write stream: %w", err)
	}
}

func (w *Writer) writeRawInt32(v int32) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(v))
	w.write(w.buf[:4])
}

func (w *Writer) writeRawFloat64(v float64) {
	binary.LittleEndian.PutUint64(w.buf[:8], math.Float64bits(v))
	w.write(w.buf[:8])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteFile creates path, runs fn on a Writer in the given mode, and flushes.
func WriteFile(path string, binary bool, fn func(w *Writer) error) error {
	//nolint:gosec // G304: model paths come from the command line
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	w := NewWriter(file, binary)
	if err := fn(w); err != nil {
		_ = file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}
