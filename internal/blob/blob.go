// Package blob implements the object store that holds downloaded article
// images, addressed as <bucket>/<date>/<flashpoint_id>/<filename>.
package blob

import (
	"fmt"
	"strings"
	"time"
)

// UploadOptions control how an object is written.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	// Upsert overwrites an existing object at the same path.
	Upsert bool
}

// Store is the object-storage contract used by the image downloader.
type Store interface {
	// List returns object paths under the given prefix.
	List(prefix string) ([]string, error)
	// Remove deletes the given objects. Missing objects are not an error.
	Remove(paths []string) error
	// Upload writes data at path.
	Upload(path string, data []byte, opts UploadOptions) error
	// ServedURL returns the URL clients use to fetch the object.
	ServedURL(path string) string
}

// ErrObjectExists is returned by Upload when the path is taken and Upsert is off.
type ErrObjectExists struct {
	Path string
}

func (e *ErrObjectExists) Error() string {
	return fmt.Sprintf("blob: object already exists at %s", e.Path)
}

// ObjectPrefix builds the directory prefix for one flashpoint on one date.
func ObjectPrefix(date, flashpointID string) string {
	return date + "/" + flashpointID + "/"
}

// CleanPath rejects traversal and normalizes separators for object paths.
func CleanPath(path string) (string, error) {
	p := strings.Trim(path, "/")
	if p == "" {
		return "", fmt.Errorf("blob: empty object path")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("blob: invalid object path %q", path)
		}
	}
	return p, nil
}

// SignedURLConfig enables HMAC-signed served URLs with an expiry.
type SignedURLConfig struct {
	Enabled bool
	Secret  string
	TTL     time.Duration
}
