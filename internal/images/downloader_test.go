package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newsgrid/enrichd/internal/blob"
	"github.com/newsgrid/enrichd/internal/metrics"
	"github.com/newsgrid/enrichd/internal/outbound"
)

var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("fakejpegpayload")...)

func newTestStore(t *testing.T) *blob.DiskStore {
	t.Helper()
	store, err := blob.NewDiskStore(t.TempDir(), "article-images", "http://blob.local", blob.SignedURLConfig{})
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	return store
}

func TestCleanImageURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://site.example/foo.jpg", "https://site.example/foo.jpg"},
		{"https://site.example/foo.jpg/@@images/image.png", "https://site.example/foo.jpg"},
		{"https://site.example/a.PNG/resize/600", "https://site.example/a.PNG"},
		{"https://site.example/pic.webp?w=900#frag", "https://site.example/pic.webp"},
	}
	for _, c := range cases {
		got, err := CleanImageURL(c.in)
		if err != nil {
			t.Fatalf("CleanImageURL(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("CleanImageURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCleanImageURLRejectsBadSchemes(t *testing.T) {
	for _, in := range []string{"ftp://site/x.jpg", "javascript:alert(1)", "//no-scheme/x.jpg"} {
		if _, err := CleanImageURL(in); err == nil {
			t.Fatalf("CleanImageURL(%q) accepted", in)
		}
	}
}

func TestObjectFilename(t *testing.T) {
	name := objectFilename(2, "art:17", "https://site.example/pic.jpeg", "image/jpeg")
	if !strings.HasPrefix(name, "img_2_art_17") || !strings.HasSuffix(name, ".jpg") {
		t.Fatalf("filename = %q", name)
	}
	other := objectFilename(2, "art:17", "https://site.example/other.jpeg", "image/jpeg")
	if name == other {
		t.Fatal("distinct URLs produced identical filenames")
	}
	fromMIME := objectFilename(0, "a", "https://site.example/no-ext", "image/png")
	if !strings.HasSuffix(fromMIME, ".png") {
		t.Fatalf("filename = %q, want extension from MIME", fromMIME)
	}
}

func TestSniffImageMagic(t *testing.T) {
	good := [][]byte{
		jpegBytes,
		append([]byte{0x89}, []byte("PNG\r\n")...),
		[]byte("GIF89a..."),
		append([]byte("RIFF1234"), []byte("WEBPrest")...),
		[]byte("<svg xmlns='http://www.w3.org/2000/svg'/>"),
	}
	for i, data := range good {
		if !sniffImageMagic(data) {
			t.Fatalf("case %d rejected", i)
		}
	}
	if sniffImageMagic([]byte("<html><body>not found</body></html>")) {
		t.Fatal("html accepted as image")
	}
}

func TestDownloadUploadsAndServes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(jpegBytes)
	}))
	defer srv.Close()

	store := newTestStore(t)
	d := NewDownloader(store, outbound.NewClientFactory())
	got := d.Download(context.Background(), "2026-08-26", "fp1", "art1",
		[]string{srv.URL + "/a.jpg", srv.URL + "/b.jpg"})
	if len(got) != 2 {
		t.Fatalf("served = %v, want 2", got)
	}
	for _, u := range got {
		if !strings.HasPrefix(u, "http://blob.local/article-images/2026-08-26/fp1/img_") {
			t.Fatalf("served url = %q", u)
		}
	}

	stored, err := store.List(blob.ObjectPrefix("2026-08-26", "fp1"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored = %v", stored)
	}
}

func TestDownloadClearsPreviousObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		if r.Method != http.MethodHead {
			w.Write(jpegBytes)
		}
	}))
	defer srv.Close()

	store := newTestStore(t)
	stale := blob.ObjectPrefix("2026-08-26", "fp1") + "img_0_oldhash.jpg"
	if err := store.Upload(stale, jpegBytes, blob.UploadOptions{}); err != nil {
		t.Fatalf("seed upload: %v", err)
	}

	d := NewDownloader(store, outbound.NewClientFactory())
	d.Download(context.Background(), "2026-08-26", "fp1", "art1", []string{srv.URL + "/new.jpg"})

	stored, err := store.List(blob.ObjectPrefix("2026-08-26", "fp1"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(stored) != 1 || stored[0] == stale {
		t.Fatalf("stored = %v, want stale object replaced", stored)
	}
}

func TestDownloadDropsNonImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/page.jpg"):
			w.Header().Set("Content-Type", "text/html")
			if r.Method != http.MethodHead {
				w.Write([]byte("<html>soft 404</html>"))
			}
		default:
			w.Header().Set("Content-Type", "image/jpeg")
			if r.Method != http.MethodHead {
				w.Write(jpegBytes)
			}
		}
	}))
	defer srv.Close()

	store := newTestStore(t)
	d := NewDownloader(store, outbound.NewClientFactory())
	got := d.Download(context.Background(), "2026-08-26", "fp1", "art1",
		[]string{srv.URL + "/page.jpg", srv.URL + "/real.jpg"})
	if len(got) != 1 || !strings.Contains(got[0], "img_1_") {
		t.Fatalf("served = %v, want only the real image, index preserved", got)
	}
}

func TestDownloadRespectsSizeCap(t *testing.T) {
	big := make([]byte, 64)
	copy(big, jpegBytes)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		if r.Method != http.MethodHead {
			w.Write(big)
		}
	}))
	defer srv.Close()

	store := newTestStore(t)
	d := NewDownloader(store, outbound.NewClientFactory())
	d.MaxBytes = 32
	got := d.Download(context.Background(), "2026-08-26", "fp1", "art1", []string{srv.URL + "/big.jpg"})
	if len(got) != 0 {
		t.Fatalf("served = %v, want oversized image dropped", got)
	}
}

func TestProbeAttemptTimeoutBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			// Stall until the probe gives up.
			<-r.Context().Done()
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegBytes)
	}))
	defer srv.Close()

	store := newTestStore(t)
	d := NewDownloader(store, outbound.NewClientFactory())
	d.ProbeTimeout = 50 * time.Millisecond

	start := time.Now()
	got := d.Download(context.Background(), "2026-08-26", "fp1", "art1", []string{srv.URL + "/slow.jpg"})
	if len(got) != 1 {
		t.Fatalf("served = %v, want the fallback probe to carry on", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("download took %v, stalled probe was not cut off", elapsed)
	}
}

func TestDownloadCountsStoredImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		if r.Method != http.MethodHead {
			w.Write(jpegBytes)
		}
	}))
	defer srv.Close()

	registry := metrics.NewRegistry()
	d := NewDownloader(newTestStore(t), outbound.NewClientFactory())
	d.Metrics = registry
	got := d.Download(context.Background(), "2026-08-26", "fp1", "art1",
		[]string{srv.URL + "/a.jpg", srv.URL + "/b.jpg"})
	if len(got) != 2 {
		t.Fatalf("served = %v, want 2", got)
	}
	if snap := registry.Snapshot(); snap.ImagesStored != 2 {
		t.Fatalf("images stored = %d, want 2", snap.ImagesStored)
	}
}

func TestDownloadEmptyInput(t *testing.T) {
	d := NewDownloader(newTestStore(t), outbound.NewClientFactory())
	got := d.Download(context.Background(), "2026-08-26", "fp1", "art1", nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("served = %#v, want empty non-nil slice", got)
	}
}
