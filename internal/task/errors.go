package task

import "errors"

var (
	// ErrStopped is returned by Submit when the manager is not running.
	ErrStopped = errors.New("task manager stopped")
	// ErrQueueFull is returned by Submit when the worker queue is saturated.
	ErrQueueFull = errors.New("task queue full")
	// ErrDuplicate is returned by Submit when the subject already has an
	// active (pending or running) task of the same kind.
	ErrDuplicate = errors.New("subject already has an active task of this kind")

	// ErrCancelled may be returned by a job body that exits because it
	// observed the cancellation flag. The manager records the task as
	// cancelled, not failed, and leaves any partial output in place.
	ErrCancelled = errors.New("task cancelled")
)
