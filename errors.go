package codec

import "errors"

// Sentinel errors returned throughout the package. ErrWouldBlock and
// ErrEndOfStream are control-flow signals, not failures: callers of
// SendPacket/ReceiveFrame are expected to test for them with errors.Is.
var (
	// ErrWouldBlock means no output is available right now; supply more
	// input or start draining and retry.
	ErrWouldBlock = errors.New("no data currently available")

	// ErrEndOfStream means the current draining cycle has delivered
	// everything it will. Flush() starts a new cycle.
	ErrEndOfStream = errors.New("end of stream")

	// ErrInvalidArgument indicates API misuse, e.g. calling into a closed
	// decoder or submitting a mismatched partial packet.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidData indicates malformed input, e.g. truncated
	// parameter-change side data.
	ErrInvalidData = errors.New("invalid data")

	// ErrUnsupported indicates the backend does not implement a requested
	// capability.
	ErrUnsupported = errors.New("operation not supported")

	// ErrInternal indicates a backend violated its contract, e.g. reported
	// a frame without a backing buffer. Always surfaced, never swallowed.
	ErrInternal = errors.New("internal contract violation")

	// ErrAllocation indicates a buffer or pool could not be built.
	ErrAllocation = errors.New("allocation failed")
)
