package nnet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// argMap holds the key=value arguments of one configuration line.
//
// Getters record the first error and return a zero value afterwards, so an
// InitFromString can read all its keys and check done() once.
type argMap struct {
	typ    string
	values map[string]string
	used   map[string]bool
	err    error
}

// parseArgs splits "input-dim=10 output-dim=20 ..." into an argMap.
func parseArgs(typ, args string) (*argMap, error) {
	a := &argMap{
		typ:    typ,
		values: make(map[string]string),
		used:   make(map[string]bool),
	}
	for _, field := range strings.Fields(args) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" || value == "" {
			return nil, &ConfigError{Type: typ, Key: field, Details: "expected key=value"}
		}
		if _, dup := a.values[key]; dup {
			return nil, &ConfigError{Type: typ, Key: key, Details: "duplicate key"}
		}
		a.values[key] = value
	}
	return a, nil
}

func (a *argMap) fail(key, details string) {
	if a.err == nil {
		a.err = &ConfigError{Type: a.typ, Key: key, Details: details}
	}
}

func (a *argMap) has(key string) bool {
	_, ok := a.values[key]
	return ok
}

func (a *argMap) lookup(key string, required bool) (string, bool) {
	v, ok := a.values[key]
	if !ok {
		if required {
			a.fail(key, "required key is missing")
		}
		return "", false
	}
	a.used[key] = true
	return v, true
}

func (a *argMap) parseInt(key, v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		a.fail(key, fmt.Sprintf("bad integer %q", v))
		return 0
	}
	return n
}

// requiredInt returns the integer value of key.
func (a *argMap) requiredInt(key string) int {
	v, ok := a.lookup(key, true)
	if !ok {
		return 0
	}
	return a.parseInt(key, v)
}

// optionalFloat returns the float value of key, or def if absent.
func (a *argMap) optionalFloat(key string, def float64) float64 {
	v, ok := a.lookup(key, false)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		a.fail(key, fmt.Sprintf("bad float %q", v))
		return 0
	}
	return f
}

// requiredInts returns a sep-separated integer list, e.g. dims=4:4:8.
func (a *argMap) requiredInts(key, sep string) []int {
	v, ok := a.lookup(key, true)
	if !ok {
		return nil
	}
	parts := strings.Split(v, sep)
	out := make([]int, len(parts))
	for i, p := range parts {
		out[i] = a.parseInt(key, p)
	}
	return out
}

// positiveInt records an error unless n > 0.
func (a *argMap) positiveInt(key string, n int) {
	if n <= 0 && a.err == nil {
		a.fail(key, fmt.Sprintf("must be positive, got %d", n))
	}
}

// done returns the first recorded error, or an error naming any key that
// no getter consumed.
func (a *argMap) done() error {
	if a.err != nil {
		return a.err
	}
	var unused []string
	for k := range a.values {
		if !a.used[k] {
			unused = append(unused, k)
		}
	}
	if len(unused) > 0 {
		sort.Strings(unused)
		return &ConfigError{Type: a.typ, Key: unused[0], Details: "unrecognized key"}
	}
	return nil
}
