// Package transcriptquality scores recognition output.
//
// Analyze derives per-segment features (emptiness, whitespace token count,
// confidence from avg_logprob or probability) and aggregates them over the
// whole transcript, then evaluates a fixed deduction table. The report's
// IsAcceptable flag is the only signal the fallback loop consults.
// Recommendations are advisory strings mapped from issue kinds.
package transcriptquality
