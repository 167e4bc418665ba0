// Package blob abstracts the binary backing store for committed bigbuffer
// payloads. The production implementation targets any S3-compatible service;
// Memory serves tests.
package blob

import (
	"context"
	"io"
)

// Range selects a byte range of a stored file. Length <= 0 means "to the
// end of the file".
type Range struct {
	Offset int64
	Length int64
}

// Storage stores opaque binary payloads addressed by file id.
type Storage interface {
	// Put stores the payload under the given file id, overwriting.
	Put(ctx context.Context, fileID string, r io.Reader, size int64) error

	// ReadRange streams the selected byte range. A missing file fails with
	// FILE_DOES_NOT_EXIST.
	ReadRange(ctx context.Context, fileID string, rng Range) (io.ReadCloser, error)

	// Delete removes the file. Deleting a missing file is not an error.
	Delete(ctx context.Context, fileID string) error
}
