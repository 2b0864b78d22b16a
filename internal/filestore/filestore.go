package filestore

import (
	"errors"
	"io"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore keeps media bytes addressed by their sha256 hash.
type BlobStore interface {
	// Put stores the content of r under hash. Storing an existing hash is a no-op.
	Put(hash string, r io.Reader) error

	// Open returns the content stored under hash, or ErrBlobNotFound.
	Open(hash string) (io.ReadCloser, error)
}
