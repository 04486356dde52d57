// Package services defines shared utilities consumed by the pipeline stages
// and the external integrations they drive.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures from
//     ffmpeg, the recognition runner, and the LLM client classify the same way.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
