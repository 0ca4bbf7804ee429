package storage

import (
	"context"
	"time"
)

// Object is a file handed to an uploader.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
	// ExpiresAt bounds how long a generated link needs to stay usable.
	ExpiresAt time.Time
}

// Uploader stores an object and returns a link to it.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (string, error)
}
