package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Local-layer failures are surfaced to the caller;
// remote-layer failures are logged and swallowed so the UI stays
// responsive while offline.
var (
	// ErrUnknownChat reports an operation against a chat that does not
	// exist in the local store. Caller error, surfaced immediately.
	ErrUnknownChat = errors.New("unknown chat")

	// ErrStorageFull reports a local store write rejected because the
	// persistence medium is out of space. More severe than any remote
	// failure: it breaks the offline-first guarantee.
	ErrStorageFull = errors.New("local store: storage full")

	// ErrCorrupt reports a local store record that could not be written
	// or read back intact.
	ErrCorrupt = errors.New("local store: corrupt record")

	// ErrRemoteUnavailable reports a failed remote propagation. Local
	// state remains authoritative; the operation is not retried here.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)

// GenerationError reports a generation service failure: the service was
// unreachable or returned output that violated the expected format.
// It is always soft-recovered with fallback text, never fatal.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed: %s", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }
