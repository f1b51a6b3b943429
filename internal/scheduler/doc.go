// Package scheduler drives capture and export subjects from a fixed-cadence
// tick. It only decides *when* something fires; execution belongs to the
// task manager, so evaluation never blocks on a running job.
package scheduler
