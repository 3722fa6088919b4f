package native

import "errors"

// Package errors for the native backend.
var (
	// ErrBackendNotRegistered is returned by Open when no HAL backend of the
	// requested variant has been linked into the binary.
	ErrBackendNotRegistered = errors.New("native: HAL backend not registered")

	// ErrNoAdapter is returned by Open when the backend exposes no adapter.
	ErrNoAdapter = errors.New("native: no GPU adapter available")

	// ErrNotHALProvider is returned by FromProvider when the provider does
	// not expose hal.Device and hal.Queue.
	ErrNotHALProvider = errors.New("native: provider does not expose HAL device and queue")

	// ErrForeignHandle is returned when a handle created by another backend
	// is passed in.
	ErrForeignHandle = errors.New("native: handle not created by this backend")

	// ErrUnsatisfiableWait is returned by Submit for a wait on a timeline
	// value that no earlier submission signals.
	ErrUnsatisfiableWait = errors.New("native: wait on a value no submission signals")

	// ErrPassOpen is returned by End when a render pass was left open.
	ErrPassOpen = errors.New("native: command buffer ended inside a render pass")
)
