// Package preflight provides readiness checks for the external tools,
// services and filesystem paths Scribe depends on.
//
// These checks run in two contexts:
//   - `scribe watch` calls RunAll before it starts consuming the inbox.
//     If any check fails the watcher refuses to start, so files are not moved
//     into a pipeline that cannot finish them.
//   - `scribe status` uses CheckSystemDeps and the individual checks to
//     display tool and service health.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
