package message

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"
)

// MaxMediaBytes caps a single attachment.
const MaxMediaBytes = 10 << 20 // 10 MiB

var (
	// ErrMediaTooLarge is returned when an attachment exceeds MaxMediaBytes.
	ErrMediaTooLarge = errors.New("message: media too large")
	// ErrMediaEmpty is returned for a zero-length attachment.
	ErrMediaEmpty = errors.New("message: media empty")
)

// MediaStore saves attachments and returns a reference to them.
type MediaStore interface {
	Save(ctx context.Context, name string, r io.Reader) (v1.Media, error)
}

// DiskMediaStore stores blobs on local disk, named by their BLAKE2b-256 digest.
// Identical uploads share one file.
type DiskMediaStore struct {
	dir       string
	urlPrefix string
}

// NewDiskMediaStore creates dir if needed. urlPrefix is prepended to blob names in references.
func NewDiskMediaStore(dir, urlPrefix string) (*DiskMediaStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("message: empty media dir")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("media dir: %w", err)
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &DiskMediaStore{dir: dir, urlPrefix: urlPrefix}, nil
}

// Save reads r fully (up to MaxMediaBytes), detects its content type and writes it once.
func (s *DiskMediaStore) Save(ctx context.Context, name string, r io.Reader) (v1.Media, error) {
	if err := ctx.Err(); err != nil {
		return v1.Media{}, err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxMediaBytes+1))
	if err != nil {
		return v1.Media{}, fmt.Errorf("read media %q: %w", name, err)
	}
	switch {
	case len(data) == 0:
		return v1.Media{}, ErrMediaEmpty
	case len(data) > MaxMediaBytes:
		return v1.Media{}, ErrMediaTooLarge
	}

	mt := mimetype.Detect(data)
	sum := blake2b.Sum256(data)
	blob := hex.EncodeToString(sum[:]) + mt.Extension()

	dst := filepath.Join(s.dir, blob)
	if _, err := os.Stat(dst); errors.Is(err, os.ErrNotExist) {
		if err := writeFileAtomic(s.dir, dst, data); err != nil {
			return v1.Media{}, err
		}
	} else if err != nil {
		return v1.Media{}, fmt.Errorf("stat media: %w", err)
	}

	return v1.Media{
		URL:         s.urlPrefix + blob,
		ContentType: mt.String(),
		Size:        int64(len(data)),
	}, nil
}

// Handler serves stored blobs read-only. Mount it under the store's URL prefix.
//
// Every response is sandboxed. Only raster image, audio and video blobs render
// inline; anything else (HTML, SVG, PDF, scripts) is sent as an opaque download.
func (s *DiskMediaStore) Handler() http.Handler {
	fs := http.FileServer(http.Dir(s.dir))
	return http.StripPrefix(strings.TrimSuffix(s.urlPrefix, "/"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "default-src 'none'; sandbox")
		h.Set("Cache-Control", "public, max-age=31536000, immutable")

		blob := filepath.Join(s.dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if mt, err := mimetype.DetectFile(blob); err == nil && !servedInline(mt) {
			h.Set("Content-Type", "application/octet-stream")
			h.Set("Content-Disposition", "attachment")
		}
		fs.ServeHTTP(w, r)
	}))
}

// servedInline reports whether a blob of this type is passive media a browser may render.
func servedInline(mt *mimetype.MIME) bool {
	if mt.Is("image/svg+xml") {
		return false
	}
	top, _, _ := strings.Cut(mt.String(), "/")
	switch top {
	case "image", "audio", "video":
		return true
	}
	return false
}

func writeFileAtomic(dir, dst string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("media temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("media write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("media close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("media rename: %w", err)
	}
	return nil
}
