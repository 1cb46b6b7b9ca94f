package pipeshare

// WriteHalfCloser is an interface for bidirectional io streams that implement CloseWrite()
type WriteHalfCloser interface {
	// CloseWrite shuts down the writing half of a bidirectional stream. The peer reads
	// end-of-stream once everything written so far has been consumed. The read half
	// remains usable. A listener uses this to hang up on its peer.
	CloseWrite() error
}
