package gpucore

import "errors"

// ErrDeviceLost is returned by backends when the device has been lost.
// Backends wrap their native loss error with it so callers can use
// errors.Is regardless of the underlying API.
var ErrDeviceLost = errors.New("gpucore: device lost")
