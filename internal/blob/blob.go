// Package blob uploads binary content to object storage and resolves
// retrieval URLs for it.
//
// Store is the backend contract (S3 or the local filesystem). Uploader adds
// path naming and progress reporting on top of any Store.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Store is an object storage backend.
type Store interface {
	// Put writes body under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
	// URL resolves a durable retrieval URL for key.
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// File is content to be uploaded.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

// Object is an uploaded blob: its storage key and retrieval URL.
type Object struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// ObjectPath names an upload "<prefix>/<unix millis>_<base name>".
// Names are not content-addressed: two uploads with the same name in the
// same millisecond share a path.
func ObjectPath(prefix, filename string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%d_%s", at.UnixMilli(), name)
	}
	return fmt.Sprintf("%s/%d_%s", prefix, at.UnixMilli(), name)
}

// validKey rejects keys that could escape a storage root.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("blob: invalid key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("blob: invalid key %q", key)
		}
	}
	return nil
}
