// Package textutil provides small string helpers for filename sanitization
// and display formatting.
package textutil
