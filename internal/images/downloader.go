package images

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"

	"github.com/newsgrid/enrichd/internal/blob"
	"github.com/newsgrid/enrichd/internal/metrics"
	"github.com/newsgrid/enrichd/internal/netutil"
	"github.com/newsgrid/enrichd/internal/outbound"
)

// Download limits.
const (
	DefaultMaxBytes       = 5 << 20
	DefaultMaxConcurrency = 4
	probeTimeout          = 5 * time.Second
	bodyTimeout           = 15 * time.Second
	sniffBytes            = 32
	cacheControlValue     = "public, max-age=31536000"
)

// Known image extensions, used both to truncate CMS-suffixed URLs and to
// derive stored filenames.
var imageExtensions = []string{
	".jpg", ".jpeg", ".jpe", ".png", ".gif", ".webp", ".avif", ".svg",
	".bmp", ".tiff", ".tif", ".ico", ".heic", ".heif",
}

// Downloader materializes candidate image URLs into the object bucket.
type Downloader struct {
	Store          blob.Store
	Factory        *outbound.ClientFactory
	MaxBytes       int64
	MaxConcurrency int
	// ProbeTimeout bounds each metadata probe attempt. Defaults to 5s.
	ProbeTimeout time.Duration
	// Metrics, when set, counts successfully stored images.
	Metrics *metrics.Registry

	// One lock per flashpoint so a concurrent run can't clear the directory
	// while another run is still uploading into it.
	locks *xsync.Map[string, *sync.Mutex]
}

// NewDownloader wires a downloader over the given store and client factory.
func NewDownloader(store blob.Store, factory *outbound.ClientFactory) *Downloader {
	return &Downloader{
		Store:          store,
		Factory:        factory,
		MaxBytes:       DefaultMaxBytes,
		MaxConcurrency: DefaultMaxConcurrency,
		locks:          xsync.NewMap[string, *sync.Mutex](),
	}
}

// Download fetches, validates, and uploads the candidate URLs for one
// article, returning served URLs ordered as the inputs. Failed candidates
// are dropped.
func (d *Downloader) Download(ctx context.Context, date, flashpointID, articleID string, candidates []string) []string {
	if len(candidates) == 0 {
		return []string{}
	}

	lock := d.flashpointLock(flashpointID)
	lock.Lock()
	defer lock.Unlock()

	d.clearPrefix(date, flashpointID)

	maxConc := d.MaxConcurrency
	if maxConc <= 0 {
		maxConc = DefaultMaxConcurrency
	}
	sem := make(chan struct{}, maxConc)
	results := make([]string, len(candidates))
	var wg sync.WaitGroup
	for i, raw := range candidates {
		wg.Add(1)
		go func(i int, raw string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			served, err := d.downloadOne(ctx, date, flashpointID, articleID, i, raw)
			if err != nil {
				log.Printf("[images] candidate %d for %s/%s skipped: %v", i, date, flashpointID, err)
				return
			}
			results[i] = served
		}(i, raw)
	}
	wg.Wait()

	out := make([]string, 0, len(candidates))
	for _, served := range results {
		if served != "" {
			out = append(out, served)
		}
	}
	if d.Metrics != nil && len(out) > 0 {
		d.Metrics.AddImagesStored(len(out))
	}
	return out
}

func (d *Downloader) flashpointLock(flashpointID string) *sync.Mutex {
	lock, _ := d.locks.LoadOrCompute(flashpointID, func() (*sync.Mutex, bool) {
		return &sync.Mutex{}, false
	})
	return lock
}

// clearPrefix deletes previous uploads for the flashpoint: processing is
// latest-wins per flashpoint per date. Failures are logged, never fatal.
func (d *Downloader) clearPrefix(date, flashpointID string) {
	prefix := blob.ObjectPrefix(date, flashpointID)
	existing, err := d.Store.List(prefix)
	if err != nil {
		log.Printf("[images] list %s failed: %v", prefix, err)
		return
	}
	if len(existing) == 0 {
		return
	}
	if err := d.Store.Remove(existing); err != nil {
		log.Printf("[images] clear %s failed: %v", prefix, err)
		return
	}
	log.Printf("[images] cleared %d stale objects under %s", len(existing), prefix)
}

func (d *Downloader) downloadOne(ctx context.Context, date, flashpointID, articleID string, index int, raw string) (string, error) {
	cleaned, err := CleanImageURL(raw)
	if err != nil {
		return "", err
	}

	maxBytes := d.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	contentType, contentLength := d.probe(ctx, cleaned)
	if contentLength > maxBytes {
		return "", fmt.Errorf("probe reports %d bytes, over cap", contentLength)
	}

	bodyCtx, cancel := context.WithTimeout(ctx, bodyTimeout)
	defer cancel()
	data, err := d.Factory.Fetch(bodyCtx, "", cleaned, outbound.FetchOptions{
		RequireStatusOK: true,
		UserAgent:       netutil.BrowserUserAgent,
		MaxBodyBytes:    maxBytes + 1,
	})
	if err != nil {
		return "", fmt.Errorf("fetch body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("body exceeds %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty body")
	}

	mime := detectMIME(contentType, data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("content-type %q is not an image", mime)
	}
	if !sniffImageMagic(data) {
		return "", fmt.Errorf("body does not carry an image magic header")
	}

	filename := objectFilename(index, articleID, cleaned, mime)
	objectPath := blob.ObjectPrefix(date, flashpointID) + filename
	err = d.Store.Upload(objectPath, data, blob.UploadOptions{
		ContentType:  mime,
		CacheControl: cacheControlValue,
		Upsert:       true,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return d.Store.ServedURL(objectPath), nil
}

// probe learns content-type and length ahead of the full fetch: HEAD first,
// then a ranged GET, then a bare GET. Hosts that reject all three are still
// allowed through; the body fetch re-checks everything.
func (d *Downloader) probe(ctx context.Context, rawURL string) (contentType string, contentLength int64) {
	client := d.Factory.Direct()
	timeout := d.ProbeTimeout
	if timeout <= 0 {
		timeout = probeTimeout
	}
	attempts := []struct {
		method string
		ranged bool
	}{
		{http.MethodHead, false},
		{http.MethodGet, true},
		{http.MethodGet, false},
	}
	for _, a := range attempts {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		req, err := http.NewRequestWithContext(probeCtx, a.method, rawURL, nil)
		if err != nil {
			cancel()
			return "", 0
		}
		req.Header.Set("User-Agent", netutil.BrowserUserAgent)
		if a.ranged {
			req.Header.Set("Range", "bytes=0-0")
		}
		resp, err := client.Do(req)
		if err != nil {
			cancel()
			continue
		}
		resp.Body.Close()
		cancel()
		if resp.StatusCode >= 400 {
			continue
		}
		length := resp.ContentLength
		if a.ranged {
			length = parseRangeTotal(resp.Header.Get("Content-Range"))
		}
		return resp.Header.Get("Content-Type"), length
	}
	return "", 0
}

// parseRangeTotal extracts the total size from "bytes 0-0/12345".
func parseRangeTotal(contentRange string) int64 {
	idx := strings.LastIndexByte(contentRange, '/')
	if idx < 0 {
		return 0
	}
	var total int64
	if _, err := fmt.Sscanf(contentRange[idx+1:], "%d", &total); err != nil {
		return 0
	}
	return total
}

// CleanImageURL normalizes a candidate URL and truncates CMS-style suffixes
// after the first known image extension:
// https://site/foo.jpg/@@images/x.png → https://site/foo.jpg.
func CleanImageURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("image url missing host")
	}

	lowered := strings.ToLower(u.Path)
	cut := -1
	for _, ext := range imageExtensions {
		if idx := strings.Index(lowered, ext+"/"); idx >= 0 {
			end := idx + len(ext)
			if cut < 0 || end < cut {
				cut = end
			}
		}
	}
	if cut >= 0 {
		u.Path = u.Path[:cut]
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

var mimeExtensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/avif":    ".avif",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
	"image/x-icon":  ".ico",
	"image/heic":    ".heic",
	"image/heif":    ".heif",
}

// objectFilename builds img_<index>_<idSafe><urlhash>.<ext>. The short URL
// hash keeps distinct source URLs from colliding on the same index.
func objectFilename(index int, articleID, cleanedURL, mime string) string {
	idSafe := sanitizeID(articleID)
	hash := fmt.Sprintf("%06x", xxh3.HashString(cleanedURL)&0xffffff)
	ext := strings.ToLower(path.Ext(cleanedURL))
	if !isImageExtension(ext) {
		ext = mimeExtensions[mime]
	}
	if ext == ".jpe" || ext == ".jpeg" {
		ext = ".jpg"
	}
	if ext == "" {
		ext = ".img"
	}
	return fmt.Sprintf("img_%d_%s%s%s", index, idSafe, hash, ext)
}

func isImageExtension(ext string) bool {
	for _, known := range imageExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// detectMIME prefers the declared content-type and falls back to sniffing.
func detectMIME(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	return http.DetectContentType(data[:min(len(data), 512)])
}

var magicHeaders = [][]byte{
	{0xFF, 0xD8, 0xFF},             // jpeg
	{0x89, 'P', 'N', 'G'},          // png
	[]byte("GIF8"),                 // gif
	[]byte("BM"),                   // bmp
	{0x49, 0x49, 0x2A, 0x00},       // tiff LE
	{0x4D, 0x4D, 0x00, 0x2A},       // tiff BE
	{0x00, 0x00, 0x01, 0x00},       // ico
}

// sniffImageMagic checks the first bytes against known image signatures.
// RIFF/WEBP and ftyp-based formats (avif/heic) carry their tag at an offset.
func sniffImageMagic(data []byte) bool {
	head := data[:min(len(data), sniffBytes)]
	for _, magic := range magicHeaders {
		if bytes.HasPrefix(head, magic) {
			return true
		}
	}
	if len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")) {
		return true
	}
	if len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")) {
		brand := string(head[8:12])
		if strings.HasPrefix(brand, "avi") || strings.HasPrefix(brand, "hei") || strings.HasPrefix(brand, "mif") {
			return true
		}
	}
	// SVG is text; accept a leading XML or svg tag.
	trimmed := bytes.TrimLeft(data[:min(len(data), 64)], " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<svg")) {
		return true
	}
	return false
}
