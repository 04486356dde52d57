// Package quality holds the scoring primitives shared by the audio and
// transcript analyzers.
//
// Both analyzers describe their deductions as a table of Rule values
// evaluated independently against a feature struct. Evaluate turns the
// table into Issues, and Assess derives score, level, and the acceptance
// flags from those issues alone, so a report can always be recomputed
// from its issue list.
package quality
