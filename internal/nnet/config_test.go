package nnet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	config := `# two-layer model
AffineComponent input-dim=4 output-dim=6 learning-rate=0.01

TanhComponent dim=6
  # output layer
AffineComponent input-dim=6 output-dim=3
SoftmaxComponent dim=3
`
	components, err := ReadConfig(strings.NewReader(config), newTestRand())
	require.NoError(t, err)
	require.Len(t, components, 4)
	assert.Equal(t, "TanhComponent", components[1].Type())
	assert.Equal(t, 3, components[3].OutputDim())
}

func TestReadConfigErrors(t *testing.T) {
	_, err := ReadConfig(strings.NewReader("# nothing\n\n"), nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = ReadConfig(strings.NewReader("TanhComponent dim=3\nTanhComponent dim=x\n"), nil)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "config line 2")

	_, err = ReadConfig(strings.NewReader("TanhComponent dim=3\nSigmoidComponent dim=4\n"), nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ReadConfig(strings.NewReader("ReluComponent dim=3\n"), nil)
	assert.ErrorIs(t, err, ErrUnknownComponent)
}
