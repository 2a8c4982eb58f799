package clip

import "errors"

var (
	// ErrNotReady means the clip cannot be built yet (no statcast row, no
	// reachable video). The queue retries later.
	ErrNotReady = errors.New("clip not ready")
	// ErrPermanent means retrying cannot help (ffmpeg missing, output too
	// large, play too old). The queue abandons the item at once.
	ErrPermanent = errors.New("clip permanently unavailable")
)
