// Package subtitles renders transcript segments as SRT and performs basic
// sanity checks on SRT content.
//
// The rendered SRT is the optional artifact stored next to each result cache
// entry and the .srt file the inbox watcher writes to the output directory.
package subtitles
