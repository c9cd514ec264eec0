package storage

import (
	"errors"
	"io"
)

var ErrInvalidKey = errors.New("invalid blob key")

// BlobStore holds uploaded sheet images. Keys are slash-separated relative
// paths such as "sheets/<owner>/<answerKey>/<id>.png".
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
	// Path returns a local filesystem path for key, for collaborators that
	// can only read files (external detectors).
	Path(key string) (string, error)
}
