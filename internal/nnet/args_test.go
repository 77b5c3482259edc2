package nnet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	a, err := parseArgs("AffineComponent", "input-dim=3  output-dim=4\tdims=1:2:3 learning-rate=1e-3")
	require.NoError(t, err)
	assert.True(t, a.has("dims"))
	assert.False(t, a.has("l2-penalty"))
	assert.Equal(t, 3, a.requiredInt("input-dim"))
	assert.Equal(t, 4, a.requiredInt("output-dim"))
	assert.Equal(t, []int{1, 2, 3}, a.requiredInts("dims", ":"))
	assert.Equal(t, 1e-3, a.optionalFloat("learning-rate", 0))
	assert.Equal(t, 0.5, a.optionalFloat("l2-penalty", 0.5))
	assert.NoError(t, a.done())
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args string
		key  string
	}{
		{"missing value", "dim=", "dim="},
		{"missing key", "=3", "=3"},
		{"no separator", "dim", "dim"},
		{"duplicate", "dim=3 dim=4", "dim"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs("TanhComponent", tt.args)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "TanhComponent", cfgErr.Type)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

func TestArgMapFirstErrorWins(t *testing.T) {
	a, err := parseArgs("AffineComponent", "input-dim=x output-dim=y extra=1")
	require.NoError(t, err)
	_ = a.requiredInt("input-dim")
	_ = a.requiredInt("output-dim")
	_ = a.requiredInt("missing")

	err = a.done()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "input-dim", cfgErr.Key)
	assert.Equal(t, `invalid component configuration: AffineComponent: "input-dim": bad integer "x"`, err.Error())
}

func TestArgMapUnusedKey(t *testing.T) {
	a, err := parseArgs("SigmoidComponent", "dim=3 zeta=1 alpha=2")
	require.NoError(t, err)
	a.positiveInt("dim", a.requiredInt("dim"))

	var cfgErr *ConfigError
	require.ErrorAs(t, a.done(), &cfgErr)
	assert.Equal(t, "alpha", cfgErr.Key)
	assert.Equal(t, "unrecognized key", cfgErr.Details)
}
