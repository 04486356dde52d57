// Package tiers holds the recognition model catalogue and the pure candidate
// selection used by the fallback loop.
//
// A Catalogue is an immutable, ordered list of tiers from cheapest to most
// robust. Plan filters it by audio quality score; when every tier's floor is
// above the score the full catalogue is returned instead, so recognition is
// always attempted. Manual collapses the plan to a single named tier.
package tiers
