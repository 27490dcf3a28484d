package vision

import "fmt"

// InitializationError indicates the recognizer was used before Init
// completed, or Init itself failed. It is fatal to a playback session.
type InitializationError struct {
	Reason string
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("vision engine not initialized: %s", e.Reason)
}

// RecognitionError indicates a single recognition cycle failed. It is
// recoverable; the poller treats it as "no matches this tick".
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}
