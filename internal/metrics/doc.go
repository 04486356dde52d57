// Package metrics exposes Prometheus instrumentation for orchestration runs.
//
// A Recorder owns its own registry so tests and multiple watchers never
// collide on the global default registry. Counters and histograms are
// updated by the orchestrator as runs progress; cache usage is read at
// scrape time by a collector over the result cache.
package metrics
