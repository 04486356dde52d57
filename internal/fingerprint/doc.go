// Package fingerprint computes content digests for input media files.
//
// A fingerprint is the hex-encoded SHA-256 of the file's bytes and nothing
// else: the file name, path, and modification time never influence it. The
// result cache, run history, and in-flight locks all key off this value.
//
// Primary entry points:
//   - File: streams a file from disk in fixed-size chunks
//   - Reader: digests an arbitrary stream with the same chunking
package fingerprint
