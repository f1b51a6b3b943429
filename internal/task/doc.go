// Package task tracks units of asynchronous work (capture, export, render)
// as observable, cancellable records, and runs their job bodies on a bounded
// worker pool.
//
// Cancellation is cooperative: Cancel only raises a flag, and the task
// reaches the cancelled state when its job body observes the flag (or before
// it ever starts). Progress, rate and ETA are derived state; readers always
// see a consistent point-in-time snapshot.
package task
