package nnet

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
)

// ReadConfig builds a component chain from a configuration listing one
// component per line:
//
//	# comment
//	AffineComponent input-dim=40 output-dim=512
//	TanhComponent dim=512
//
// Blank lines and lines starting with '#' are skipped. The resulting chain
// is checked with CheckChain.
func ReadConfig(r io.Reader, rng *rand.Rand) ([]Component, error) {
	var components []Component
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := NewFromString(line, rng)
		if err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNo, err)
		}
		components = append(components, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: config defines no components", ErrConfig)
	}
	if err := CheckChain(components); err != nil {
		return nil, err
	}
	return components, nil
}
