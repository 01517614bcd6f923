package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DiskStore keeps objects as files under <root>/<bucket>/, with a sidecar
// .meta file per object carrying content-type and cache-control. Served URLs
// are <baseURL>/<bucket>/<path>, optionally HMAC-signed with an expiry.
type DiskStore struct {
	root    string
	bucket  string
	baseURL string
	signed  SignedURLConfig

	now func() time.Time
}

type objectMeta struct {
	ContentType  string `json:"content_type"`
	CacheControl string `json:"cache_control,omitempty"`
}

const metaSuffix = ".meta"

// NewDiskStore creates (if needed) the bucket directory and returns the store.
func NewDiskStore(root, bucket, baseURL string, signed SignedURLConfig) (*DiskStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("blob: bucket must not be empty")
	}
	dir := filepath.Join(root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create bucket dir %s: %w", dir, err)
	}
	return &DiskStore{
		root:    root,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		signed:  signed,
		now:     time.Now,
	}, nil
}

func (s *DiskStore) objectFile(path string) string {
	return filepath.Join(s.root, s.bucket, filepath.FromSlash(path))
}

// List returns object paths under prefix, sidecars excluded, sorted by walk order.
func (s *DiskStore) List(prefix string) ([]string, error) {
	cleaned, err := CleanPath(prefix)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, s.bucket, filepath.FromSlash(cleaned))

	var out []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(filepath.Join(s.root, s.bucket), p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blob: list %s: %w", prefix, err)
	}
	return out, nil
}

// Remove deletes objects and their sidecars. Missing objects are skipped.
func (s *DiskStore) Remove(paths []string) error {
	for _, p := range paths {
		cleaned, err := CleanPath(p)
		if err != nil {
			return err
		}
		file := s.objectFile(cleaned)
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("blob: remove %s: %w", p, err)
		}
		if err := os.Remove(file + metaSuffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("blob: remove meta %s: %w", p, err)
		}
	}
	return nil
}

// Upload writes the object and its metadata sidecar.
func (s *DiskStore) Upload(path string, data []byte, opts UploadOptions) error {
	cleaned, err := CleanPath(path)
	if err != nil {
		return err
	}
	file := s.objectFile(cleaned)

	if !opts.Upsert {
		if _, err := os.Stat(file); err == nil {
			return &ErrObjectExists{Path: cleaned}
		}
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("blob: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("blob: write %s: %w", path, err)
	}

	meta := objectMeta{ContentType: opts.ContentType, CacheControl: opts.CacheControl}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("blob: marshal meta for %s: %w", path, err)
	}
	if err := os.WriteFile(file+metaSuffix, metaJSON, 0o644); err != nil {
		return fmt.Errorf("blob: write meta %s: %w", path, err)
	}
	return nil
}

// Meta reads back the stored content-type and cache-control for an object.
func (s *DiskStore) Meta(path string) (contentType, cacheControl string, err error) {
	cleaned, err := CleanPath(path)
	if err != nil {
		return "", "", err
	}
	raw, err := os.ReadFile(s.objectFile(cleaned) + metaSuffix)
	if err != nil {
		return "", "", fmt.Errorf("blob: read meta %s: %w", path, err)
	}
	var meta objectMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", "", fmt.Errorf("blob: decode meta %s: %w", path, err)
	}
	return meta.ContentType, meta.CacheControl, nil
}

// ServedURL builds the public URL, or a signed URL when signing is enabled.
func (s *DiskStore) ServedURL(path string) string {
	cleaned, err := CleanPath(path)
	if err != nil {
		return ""
	}
	raw := s.baseURL + "/" + s.bucket + "/" + cleaned
	if !s.signed.Enabled {
		return raw
	}

	expires := s.now().Add(s.signed.TTL).Unix()
	sig := s.sign(cleaned, expires)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", sig)
	return raw + "?" + q.Encode()
}

// VerifySignedURL checks a signature produced by ServedURL against the path
// and expiry, and that the expiry has not passed.
func (s *DiskStore) VerifySignedURL(path, signature string, expires int64) bool {
	cleaned, err := CleanPath(path)
	if err != nil {
		return false
	}
	if s.now().Unix() > expires {
		return false
	}
	want := s.sign(cleaned, expires)
	return hmac.Equal([]byte(want), []byte(signature))
}

func (s *DiskStore) sign(path string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(s.signed.Secret))
	fmt.Fprintf(mac, "%s/%s:%d", s.bucket, path, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
