package upload

import "errors"

// ErrNotEnqueued is returned when the requested (username, filename) pair
// has no corresponding upload. Receiving it means the caller's view of
// pending uploads is out of sync with the governor; the caller should
// abort that transfer and resynchronize.
var ErrNotEnqueued = errors.New("upload not enqueued")
