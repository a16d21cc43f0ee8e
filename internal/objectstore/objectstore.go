// Package objectstore is the remote-byte-range contract the planner and
// executor stream audio through. It never buffers a whole object in
// memory: every read is bounded by an explicit, inclusive byte range.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned when the object or byte range does not exist.
var ErrNotFound = errors.New("objectstore: not found")

// ErrTransport is returned when a remote call fails for a network reason.
var ErrTransport = errors.New("objectstore: transport error")

// ObjectInfo is the result of a Head call.
type ObjectInfo struct {
	SizeBytes uint64
}

// RangeReader is the external contract this pipeline depends on for all
// remote audio access. Implementations must treat startByte/endByte as
// inclusive bounds, matching HTTP Range semantics.
type RangeReader interface {
	// Head returns metadata for an object without transferring its body.
	Head(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// GetRange streams bytes [startByte, endByte] (inclusive) of the object.
	// Callers must close the returned reader.
	GetRange(ctx context.Context, bucket, key string, startByte, endByte uint64) (io.ReadCloser, error)

	// Presign returns a time-limited URL for the whole object, for callers
	// that hand a URL to an external tool rather than reading it directly.
	Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// CopyRangeToFile reads [startByte, endByte] from bucket/key and writes it
// to w, returning the number of bytes copied. It is a small helper shared
// by the planner and the executor, both of which stream a byte range into
// a local temp file before handing it to an external tool.
func CopyRangeToFile(ctx context.Context, r RangeReader, bucket, key string, startByte, endByte uint64, w io.Writer) (int64, error) {
	body, err := r.GetRange(ctx, bucket, key, startByte, endByte)
	if err != nil {
		return 0, fmt.Errorf("objectstore: get range %d-%d: %w", startByte, endByte, err)
	}
	defer func() { _ = body.Close() }()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("objectstore: copy range %d-%d: %w", startByte, endByte, err)
	}
	return n, nil
}
