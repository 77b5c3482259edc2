package am

import (
	"bytes"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/nnet/internal/kio"
	"github.com/born-ml/nnet/internal/nnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const testConfig = `
AffineComponent input-dim=5 output-dim=8
SigmoidComponent dim=8
BlockAffineComponent input-dim=8 output-dim=4 num-blocks=2
SoftmaxComponent dim=4
MixtureProbComponent dims=2:2
`

func newTestModel(t *testing.T) *AmNnet {
	t.Helper()
	rng := rand.New(rand.NewPCG(3, 4))
	components, err := nnet.ReadConfig(strings.NewReader(testConfig), rng)
	require.NoError(t, err)
	a, err := New(TransitionModel{Payload: []byte{1, 2, 3, 0xff}}, components)
	require.NoError(t, err)
	return a
}

func encodeModel(t *testing.T, a *AmNnet, binary bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := kio.NewWriter(&buf, binary)
	require.NoError(t, a.Write(w))
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func decodeModel(data []byte) (*AmNnet, error) {
	r, err := kio.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var a AmNnet
	if err := a.Read(r); err != nil {
		return nil, err
	}
	return &a, nil
}

func TestNew(t *testing.T) {
	a := newTestModel(t)
	assert.Equal(t, 4, a.Transition.NumPdfs)
	assert.Equal(t, 5, a.InputDim())
	assert.Equal(t, 4, a.OutputDim())
	assert.Equal(t, 5*8+8+2*(4*2)+4+2*4, a.NumParams())

	_, err := New(TransitionModel{}, nil)
	assert.ErrorIs(t, err, ErrEmptyModel)

	_, err = New(TransitionModel{NumPdfs: 7}, a.Components)
	assert.ErrorIs(t, err, ErrPdfMismatch)

	_, err = New(TransitionModel{}, []nnet.Component{nnet.NewSigmoidComponent(3), nnet.NewTanhComponent(4)})
	assert.ErrorIs(t, err, nnet.ErrDimensionMismatch)
}

func TestRoundTrip(t *testing.T) {
	a := newTestModel(t)
	require.NoError(t, a.SetPriors(mat.NewVecDense(4, []float64{0.1, 0.2, 0.3, 0.4})))

	for _, binary := range []bool{true, false} {
		t.Run(kio.ModeName(binary), func(t *testing.T) {
			got, err := decodeModel(encodeModel(t, a, binary))
			require.NoError(t, err)
			assert.Equal(t, a.Transition, got.Transition)
			require.Len(t, got.Components, len(a.Components))
			assert.True(t, mat.Equal(a.Priors, got.Priors))
			assert.Equal(t, encodeModel(t, a, true), encodeModel(t, got, true))
			assert.Equal(t, a.Info(), got.Info())
		})
	}
}

func TestRoundTripWithoutPriors(t *testing.T) {
	a := newTestModel(t)
	a.Transition.Payload = nil
	got, err := decodeModel(encodeModel(t, a, false))
	require.NoError(t, err)
	assert.True(t, got.Priors.IsEmpty())
	assert.Empty(t, got.Transition.Payload)
	assert.NotContains(t, got.Info(), "priors")
}

func TestReadRejectsBadModels(t *testing.T) {
	a := newTestModel(t)

	// Priors of the wrong length.
	a.Priors = mat.NewVecDense(3, []float64{1, 1, 1})
	_, err := decodeModel(encodeModel(t, a, true))
	assert.ErrorIs(t, err, ErrBadPriors)

	// A broken chain.
	a.Priors = nil
	a.Components[1] = nnet.NewSigmoidComponent(7)
	_, err = decodeModel(encodeModel(t, a, true))
	assert.ErrorIs(t, err, nnet.ErrDimensionMismatch)

	// Truncated stream.
	a = newTestModel(t)
	data := encodeModel(t, a, true)
	_, err = decodeModel(data[:len(data)/2])
	assert.ErrorIs(t, err, kio.ErrTruncated)

	// Unknown component type.
	text := strings.Replace(string(encodeModel(t, a, false)), "SigmoidComponent", "LogisticComponent", 2)
	_, err = decodeModel([]byte(text))
	assert.ErrorIs(t, err, nnet.ErrUnknownComponent)
}

func TestSetPriors(t *testing.T) {
	a := newTestModel(t)
	assert.ErrorIs(t, a.SetPriors(mat.NewVecDense(3, []float64{1, 1, 1})), ErrBadPriors)
	assert.ErrorIs(t, a.SetPriors(mat.NewVecDense(4, []float64{1, 0, 1, 1})), ErrBadPriors)

	p := mat.NewVecDense(4, []float64{1, 2, 3, 4})
	require.NoError(t, a.SetPriors(p))
	p.SetVec(0, 100)
	assert.Equal(t, 1.0, a.Priors.AtVec(0))
}

func TestCopy(t *testing.T) {
	a := newTestModel(t)
	require.NoError(t, a.SetPriors(mat.NewVecDense(4, []float64{1, 2, 3, 4})))
	before := encodeModel(t, a, true)

	cp := a.Copy()
	for _, c := range cp.Components {
		if u, ok := c.(nnet.Updatable); ok {
			u.SetZero(true)
		}
	}
	cp.Transition.Payload[0] = 9
	cp.Priors.SetVec(0, 5)
	assert.Equal(t, before, encodeModel(t, a, true))
}

func TestFiles(t *testing.T) {
	a := newTestModel(t)
	dir := t.TempDir()
	for _, binary := range []bool{true, false} {
		path := filepath.Join(dir, "final."+kio.ModeName(binary)+".mdl")
		require.NoError(t, a.WriteFile(path, binary))
		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, encodeModel(t, a, true), encodeModel(t, got, true))
	}

	_, err := ReadFile(filepath.Join(dir, "missing.mdl"))
	assert.Error(t, err)
}
