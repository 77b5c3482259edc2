package kio

// Format constants.
const (
	BinaryHeader = "\x00B" // Announces a binary stream

	sizeInt32   = 4
	sizeFloat32 = 4
	sizeFloat64 = 8

	tagDoubleVector = "DV"
	tagFloatVector  = "FV"
	tagDoubleMatrix = "DM"
	tagFloatMatrix  = "FM"

	// maxElements bounds allocations driven by sizes read from a stream.
	maxElements = 1 << 28

	// readChunk is the initial capacity of buffers sized from a stream.
	readChunk = 1 << 16
)

// Mode names used in Info strings and CLI output.
const (
	ModeBinary = "binary"
	ModeText   = "text"
)

// ModeName returns the name of the given mode flag.
func ModeName(binary bool) string {
	if binary {
		return ModeBinary
	}
	return ModeText
}
