// Package schedule implements the two schedule kinds used by capture and
// export subjects: cron-style expressions (second/minute/hour sub-expressions
// over fixed ranges) and anchored intervals (amount + unit + anchor instant).
//
// Matching is pure: an expression never mutates when asked whether an instant
// matches. Serialization round-trips losslessly for every expression this
// package constructs; arbitrary hand-written cron text keeps its raw form.
package schedule
