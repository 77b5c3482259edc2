package train

import "errors"

// ErrNoComponents is returned for an empty component chain.
var ErrNoComponents = errors.New("no components")
