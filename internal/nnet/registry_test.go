package nnet

import (
	"bytes"
	"testing"

	"github.com/born-ml/nnet/internal/kio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredTypes(t *testing.T) {
	assert.Equal(t, []string{
		"AffineComponent",
		"BlockAffineComponent",
		"MixtureProbComponent",
		"PermuteComponent",
		"SigmoidComponent",
		"SoftmaxComponent",
		"TanhComponent",
	}, RegisteredTypes())

	for _, typ := range RegisteredTypes() {
		c, err := NewByType(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, c.Type())
	}
}

func TestNewFromString(t *testing.T) {
	rng := newTestRand()
	lines := []string{
		"AffineComponent input-dim=3 output-dim=4 learning-rate=0.01",
		"  SigmoidComponent dim=4",
		"BlockAffineComponent input-dim=4 output-dim=2 num-blocks=2",
		"SoftmaxComponent dim=2",
		"MixtureProbComponent dims=2",
		"PermuteComponent dim=2",
		"TanhComponent dim=2",
	}
	var chain []Component
	for _, line := range lines {
		c, err := NewFromString(line, rng)
		require.NoError(t, err, line)
		chain = append(chain, c)
	}
	require.NoError(t, CheckChain(chain))
	assert.Equal(t, 0.01, chain[0].(Updatable).LearningRate())
}

func TestNewFromStringErrors(t *testing.T) {
	_, err := NewFromString("", nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewFromString("LstmComponent dim=3", nil)
	assert.ErrorIs(t, err, ErrUnknownComponent)

	_, err = NewFromString("SigmoidComponent dims=3", nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNewFromStringWhitespace(t *testing.T) {
	for _, line := range []string{
		"SigmoidComponent\tdim=3",
		"SigmoidComponent \t dim=3\r",
		"\tSigmoidComponent  dim=3",
	} {
		c, err := NewFromString(line, nil)
		require.NoError(t, err, "%q", line)
		assert.Equal(t, 3, c.InputDim())
	}

	_, err := NewFromString("SigmoidComponent", nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestReadNewSequence(t *testing.T) {
	rng := newTestRand()
	components := sampleComponents(t, rng)
	for _, binary := range []bool{true, false} {
		var buf bytes.Buffer
		w := kio.NewWriter(&buf, binary)
		for _, c := range components {
			require.NoError(t, c.Write(w))
		}
		require.NoError(t, w.Flush())

		r, err := kio.NewReader(&buf)
		require.NoError(t, err)
		for _, want := range components {
			got, err := ReadNew(r)
			require.NoError(t, err)
			assert.Equal(t, want.Type(), got.Type())
		}
		assert.True(t, r.AtEOF())
	}
}

func TestReadNewErrors(t *testing.T) {
	_, err := decode("<LstmComponent> <Dim> 3 </LstmComponent>")
	assert.ErrorIs(t, err, ErrUnknownComponent)

	_, err = decode("</AffineComponent>")
	assert.ErrorIs(t, err, ErrUnknownComponent)

	_, err = decode("Dim")
	assert.ErrorIs(t, err, ErrUnknownComponent)

	_, err = decode("<SigmoidComponent> <Dim> 3 </TanhComponent>")
	assert.ErrorIs(t, err, kio.ErrUnexpectedToken)

	_, err = decode("<SigmoidComponent> <Dim>")
	assert.ErrorIs(t, err, kio.ErrTruncated)
}

func TestCheckChain(t *testing.T) {
	rng := newTestRand()
	assert.NoError(t, CheckChain(nil))
	assert.NoError(t, CheckChain([]Component{NewSigmoidComponent(3)}))

	err := CheckChain([]Component{
		NewAffineComponent(0.1, 0, 2, 3, 1, rng),
		NewSigmoidComponent(3),
		NewSoftmaxComponent(4),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "component 1 (SigmoidComponent) outputs 3")
}
