// Package language normalizes the language hints handed to the recognition
// runner and renders language codes for display.
//
// Hints may be ISO 639-1 or 639-2 codes, English language names, or BCP 47
// tags such as "pt-BR"; all normalize to the two-letter base language the
// runner understands. An empty hint or "auto" means auto-detection.
package language
