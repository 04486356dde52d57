// Package main hosts the scribe CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into orchestration
// runs, cache and history maintenance, model downloads, the inbox watcher,
// and configuration scaffolding. It centralizes configuration resolution,
// logger construction, and runtime wiring so subcommands can focus on output.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
