// Package orchestrator runs the adaptive transcription control loop for one
// input file at a time.
//
// # State Machine
//
// A run moves through
//
//	ANALYZING -> (ENHANCING)? -> ATTEMPTING[i] -> (ACCEPTED | EXHAUSTED) -> (CORRECTING)? -> DONE | FAILED
//
// and records every state it entered on the Result so "what happened" is
// inspectable without re-running. Tiers are attempted strictly one at a time
// in catalogue order; the first acceptable transcript stops the loop, and when
// none is acceptable the last tier's transcript is kept as best effort.
//
// # Failure Policy
//
// Fingerprint and analysis failures are fatal. Enhancement, correction and
// cache failures degrade to warnings. A recognition failure is fatal only on
// the last candidate tier. Fatal errors are returned as *RunError carrying the
// partial Result, so callers can still print a summary.
//
// # Cache
//
// The content fingerprint of the input is looked up in the result cache
// before any analysis. On a miss the run takes a per-fingerprint lock,
// re-checks the cache, and writes the finished result under that lock.
package orchestrator
