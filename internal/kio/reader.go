package kio

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Reader reads a token stream written by Writer.
type Reader struct {
	r       *bufio.Reader
	binary  bool
	pending string // token returned by PeekToken and not yet consumed
	peeked  bool
	buf     [8]byte
}

// NewReader creates a Reader on r and detects the stream mode.
//
// An empty stream is treated as text.
func NewReader(r io.Reader) (*Reader, error) {
	kr := &Reader{r: bufio.NewReader(r)}

	header, err := kr.r.Peek(len(BinaryHeader))
	switch {
	case err == nil && string(header) == BinaryHeader:
		kr.binary = true
		if _, err := kr.r.Discard(len(BinaryHeader)); err != nil {
			return nil, fmt.Errorf("failed to skip binary header: %w", err)
		}
	case err == nil, errors.Is(err, io.EOF):
		// text mode
	default:
		return nil, fmt.Errorf("failed to read stream header: %w", err)
	}

	return kr, nil
}

// Binary reports whether the stream is in binary mode.
func (r *Reader) Binary() bool {
	return r.binary
}

// ReadToken reads the next token.
func (r *Reader) ReadToken() (string, error) {
	if r.peeked {
		r.peeked = false
		return r.pending, nil
	}
	if r.binary {
		tok, err := r.r.ReadString(' ')
		if err != nil {
			return "", truncated(err, "token")
		}
		tok = tok[:len(tok)-1]
		if tok == "" {
			return "", fmt.Errorf("%w: empty token", ErrMalformed)
		}
		return tok, nil
	}
	if _, err := r.skipSpace(); err != nil {
		return "", truncated(err, "token")
	}
	return r.readWord("token")
}

// PeekToken returns the next token without consuming it.
func (r *Reader) PeekToken() (string, error) {
	if r.peeked {
		return r.pending, nil
	}
	tok, err := r.ReadToken()
	if err != nil {
		return "", err
	}
	r.pending = tok
	r.peeked = true
	return tok, nil
}

// ExpectToken reads the next token and fails unless it equals want.
func (r *Reader) ExpectToken(want string) error {
	got, err := r.ReadToken()
	if err != nil {
		return fmt.Errorf("reading %s: %w", want, err)
	}
	if got != want {
		return &TokenError{Expected: want, Got: got}
	}
	return nil
}

// AtEOF reports whether only whitespace remains in the stream.
func (r *Reader) AtEOF() bool {
	if r.peeked {
		return false
	}
	if !r.binary {
		if _, err := r.skipSpace(); err != nil {
			return true
		}
	}
	_, err := r.r.Peek(1)
	return err != nil
}

// ReadInt reads an int32 written by WriteInt.
func (r *Reader) ReadInt() (int, error) {
	if r.binary {
		if err := r.expectSize(sizeInt32, "int32"); err != nil {
			return 0, err
		}
		v, err := r.readRawInt32()
		return int(v), err
	}
	word, err := r.nextWord("int32")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(word, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad integer %q", ErrMalformed, word)
	}
	return int(v), nil
}

// ReadFloat reads a float written by WriteFloat. Size-4 floats are accepted
// in binary mode.
func (r *Reader) ReadFloat() (float64, error) {
	if r.binary {
		size, err := r.r.ReadByte()
		if err != nil {
			return 0, truncated(err, "float")
		}
		switch size {
		case sizeFloat64:
			return r.readRawFloat64()
		case sizeFloat32:
			return r.readRawFloat32()
		default:
			return 0, fmt.Errorf("%w: float size %d", ErrMalformed, size)
		}
	}
	word, err := r.nextWord("float")
	if err != nil {
		return 0, err
	}
	return parseFloat(word)
}

// ReadBool reads a boolean written by WriteBool.
func (r *Reader) ReadBool() (bool, error) {
	var c string
	if r.binary {
		b, err := r.r.ReadByte()
		if err != nil {
			return false, truncated(err, "bool")
		}
		c = string(b)
	} else {
		word, err := r.nextWord("bool")
		if err != nil {
			return false, err
		}
		c = word
	}
	switch c {
	case "T":
		return true, nil
	case "F":
		return false, nil
	default:
		return false, fmt.Errorf("%w: bad bool %q", ErrMalformed, c)
	}
}

// ReadVector reads a vector written by WriteVector. An empty vector is
// returned as a zero-value VecDense.
func (r *Reader) ReadVector() (*mat.VecDense, error) {
	if r.binary {
		tag, err := r.ReadToken()
		if err != nil {
			return nil, err
		}
		if tag != tagDoubleVector && tag != tagFloatVector {
			return nil, &TokenError{Expected: tagDoubleVector, Got: tag}
		}
		n, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		if err := checkSize(n, 1); err != nil {
			return nil, err
		}
		if n == 0 {
			return &mat.VecDense{}, nil
		}
		data, err := r.readRawFloats(n, tag == tagFloatVector)
		if err != nil {
			return nil, err
		}
		return mat.NewVecDense(n, data), nil
	}

	if err := r.expectWord("["); err != nil {
		return nil, err
	}
	var data []float64
	for {
		word, err := r.nextWord("vector element")
		if err != nil {
			return nil, err
		}
		if word == "]" {
			break
		}
		v, err := parseFloat(word)
		if err != nil {
			return nil, err
		}
		data = append(data, v)
	}
	if len(data) == 0 {
		return &mat.VecDense{}, nil
	}
	return mat.NewVecDense(len(data), data), nil
}

// ReadMatrix reads a matrix written by WriteMatrix. An empty matrix is
// returned as a zero-value Dense.
func (r *Reader) ReadMatrix() (*mat.Dense, error) {
	if r.binary {
		return r.readMatrixBinary()
	}
	return r.readMatrixText()
}

func (r *Reader) readMatrixBinary() (*mat.Dense, error) {
	tag, err := r.ReadToken()
	if err != nil {
		return nil, err
	}
	if tag != tagDoubleMatrix && tag != tagFloatMatrix {
		return nil, &TokenError{Expected: tagDoubleMatrix, Got: tag}
	}
	rows, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	cols, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if err := checkSize(rows, cols); err != nil {
		return nil, err
	}
	if rows == 0 || cols == 0 {
		return &mat.Dense{}, nil
	}
	data, err := r.readRawFloats(rows*cols, tag == tagFloatMatrix)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(rows, cols, data), nil
}

func (r *Reader) readMatrixText() (*mat.Dense, error) {
	if err := r.expectWord("["); err != nil {
		return nil, err
	}

	var (
		data []float64
		cols = -1
		cur  int
	)
	endRow := func() error {
		if cur == 0 {
			return nil
		}
		if cols >= 0 && cur != cols {
			return fmt.Errorf("%w: ragged matrix row (%d elements, expected %d)", ErrMalformed, cur, cols)
		}
		cols = cur
		cur = 0
		return nil
	}

	for {
		newline, err := r.skipSpace()
		if err != nil {
			return nil, truncated(err, "matrix")
		}
		if newline {
			if err := endRow(); err != nil {
				return nil, err
			}
		}
		word, err := r.readWord("matrix element")
		if err != nil {
			return nil, err
		}
		if word == "]" {
			if err := endRow(); err != nil {
				return nil, err
			}
			break
		}
		v, err := parseFloat(word)
		if err != nil {
			return nil, err
		}
		data = append(data, v)
		cur++
		if len(data) > maxElements {
			return nil, fmt.Errorf("%w: matrix with more than %d elements", ErrTooLarge, maxElements)
		}
	}

	if len(data) == 0 {
		return &mat.Dense{}, nil
	}
	return mat.NewDense(len(data)/cols, cols, data), nil
}

// ReadInts reads an integer vector written by WriteInts.
func (r *Reader) ReadInts() ([]int, error) {
	if r.binary {
		n, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		if err := checkSize(n, 1); err != nil {
			return nil, err
		}
		out := make([]int, 0, min(n, readChunk))
		for len(out) < n {
			v, err := r.readRawInt32()
			if err != nil {
				return nil, err
			}
			out = append(out, int(v))
		}
		return out, nil
	}

	if err := r.expectWord("["); err != nil {
		return nil, err
	}
	out := []int{}
	for {
		word, err := r.nextWord("integer element")
		if err != nil {
			return nil, err
		}
		if word == "]" {
			return out, nil
		}
		v, err := strconv.ParseInt(word, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad integer %q", ErrMalformed, word)
		}
		out = append(out, int(v))
	}
}

// ReadBytes reads an opaque payload written by WriteBytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if err := checkSize(n, 1); err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	if r.binary {
		b, err := io.ReadAll(io.LimitReader(r.r, int64(n)))
		if err != nil {
			return nil, truncated(err, "payload")
		}
		if len(b) != n {
			return nil, truncated(io.ErrUnexpectedEOF, "payload")
		}
		return b, nil
	}
	word, err := r.nextWord("payload")
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(word)
	if err != nil || len(b) != n {
		return nil, fmt.Errorf("%w: bad payload of declared length %d", ErrMalformed, n)
	}
	return b, nil
}

// skipSpace consumes whitespace and reports whether a newline was seen.
func (r *Reader) skipSpace() (bool, error) {
	newline := false
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			return newline, err
		}
		switch c {
		case '\n':
			newline = true
		case ' ', '\t', '\r':
		default:
			return newline, r.r.UnreadByte()
		}
	}
}

// readWord reads non-whitespace bytes up to (and consuming) the next
// whitespace byte or EOF.
func (r *Reader) readWord(what string) (string, error) {
	var sb strings.Builder
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", truncated(err, what)
		}
		if c == ' ' || c == '\t' || c == '\r' {
			return sb.String(), nil
		}
		if c == '\n' {
			// Keep the newline visible to row-aware readers.
			return sb.String(), r.r.UnreadByte()
		}
		sb.WriteByte(c)
	}
}

func (r *Reader) nextWord(what string) (string, error) {
	if r.peeked {
		r.peeked = false
		return r.pending, nil
	}
	if _, err := r.skipSpace(); err != nil {
		return "", truncated(err, what)
	}
	return r.readWord(what)
}

func (r *Reader) expectWord(want string) error {
	got, err := r.nextWord(want)
	if err != nil {
		return err
	}
	if got != want {
		return &TokenError{Expected: want, Got: got}
	}
	return nil
}

func (r *Reader) expectSize(want byte, what string) error {
	size, err := r.r.ReadByte()
	if err != nil {
		return truncated(err, what)
	}
	if size != want {
		return fmt.Errorf("%w: %s size %d, expected %d", ErrMalformed, what, size, want)
	}
	return nil
}

func (r *Reader) readRawInt32() (int32, error) {
	if _, err := io.ReadFull(r.r, r.buf[:4]); err != nil {
		return 0, truncated(err, "int32")
	}
	return int32(binary.LittleEndian.Uint32(r.buf[:4])), nil
}

func (r *Reader) readRawFloat64() (float64, error) {
	if _, err := io.ReadFull(r.r, r.buf[:8]); err != nil {
		return 0, truncated(err, "float64")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.buf[:8])), nil
}

func (r *Reader) readRawFloat32() (float64, error) {
	if _, err := io.ReadFull(r.r, r.buf[:4]); err != nil {
		return 0, truncated(err, "float32")
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(r.buf[:4]))), nil
}

// readRawFloats reads n raw floats. Storage grows with the data actually
// read, so a corrupt size cannot allocate more than the stream holds.
func (r *Reader) readRawFloats(n int, single bool) ([]float64, error) {
	data := make([]float64, 0, min(n, readChunk))
	for len(data) < n {
		var (
			v   float64
			err error
		)
		if single {
			v, err = r.readRawFloat32()
		} else {
			v, err = r.readRawFloat64()
		}
		if err != nil {
			return nil, err
		}
		data = append(data, v)
	}
	return data, nil
}

func checkSize(rows, cols int) error {
	if rows < 0 || cols < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrMalformed, rows, cols)
	}
	if cols > 0 && rows > maxElements/cols {
		return fmt.Errorf("%w: %dx%d elements", ErrTooLarge, rows, cols)
	}
	return nil
}

func parseFloat(word string) (float64, error) {
	v, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad float %q", ErrMalformed, word)
	}
	return v, nil
}

func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s: %w", ErrTruncated, what, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("reading %s: %w", what, err)
}

// ReadFile opens path and runs fn on a Reader positioned after the mode
// header.
func ReadFile(path string, fn func(r *Reader) error) error {
	//nolint:gosec // G304: model paths come from the command line
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	r, err := NewReader(file)
	if err != nil {
		return err
	}
	return fn(r)
}
