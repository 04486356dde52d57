// Package llm provides an OpenRouter-compatible chat client used by the
// transcript correction pass.
//
// The client sends a system prompt and a user prompt to the configured model
// and requests a JSON object back. Replies arriving as plain content, code
// fences, streamed deltas, legacy text fields, or tool call arguments are all
// normalised to a single JSON payload.
//
// # Configuration
//
// Requires api_key and model; base_url, referer, title and timeout are
// optional. When unconfigured, callers skip correction entirely.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive the JSON payload.
// Client.CompleteStructured: CompleteJSON plus decoding into a target value.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, network timeouts and empty
// replies with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Context cancellation aborts retries immediately.
package llm
