package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ChunkSize is the read size used while streaming content into the digest.
const ChunkSize = 64 * 1024

// Length is the number of hex characters in a fingerprint.
const Length = sha256.Size * 2

// File returns the fingerprint of the file at path. Any open or read error
// aborts the digest; a partial value is never returned.
func File(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("fingerprint %s: is a directory", path)
	}

	digest, err := Reader(ctx, file)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return digest, nil
}

// Reader digests r until EOF, checking ctx between chunks.
func Reader(ctx context.Context, r io.Reader) (string, error) {
	if r == nil {
		return "", errors.New("nil reader")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Valid reports whether value has the shape of a fingerprint.
func Valid(value string) bool {
	if len(value) != Length {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
