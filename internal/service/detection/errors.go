package detection

import "errors"

var (
	ErrEmptyImage      = errors.New("empty image")
	ErrDetectorFailure = errors.New("vehicle detector unavailable")
)
