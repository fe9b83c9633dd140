// Package artwork turns catalog pictures into thumbnails and cached files
// that notification and media-session surfaces can reference.
package artwork

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Catalog pictures are JPEG, but PNG is accepted too.
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/nfnt/resize"
)

// DefaultSize is the default thumbnail edge length in pixels.
const DefaultSize = 256

const jpegQuality = 85

// Errors
var (
	ErrNoArtwork = errors.New("no artwork")
)

// Thumbnail decodes data and scales it to fit within size x size pixels,
// keeping the aspect ratio. The result is JPEG encoded.
func Thumbnail(data []byte, size uint) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNoArtwork
	}
	if size == 0 {
		size = DefaultSize
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode artwork")
	}

	resized := resize.Thumbnail(size, size, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.Wrap(err, "failed to encode artwork")
	}
	return buf.Bytes(), nil
}

// Store writes track thumbnails to the user cache directory.
type Store struct {
	mu    sync.Mutex
	dir   string // Empty means the XDG cache directory
	app   string
	size  uint
	paths map[int]string
}

// NewStore creates a store under $XDG_CACHE_HOME/<app>/artwork.
func NewStore(app string, size uint) *Store {
	return &Store{
		app:   app,
		size:  size,
		paths: make(map[int]string),
	}
}

// NewStoreAt creates a store writing into dir.
func NewStoreAt(dir string, size uint) *Store {
	return &Store{
		dir:   dir,
		size:  size,
		paths: make(map[int]string),
	}
}

// Size returns the thumbnail edge length.
func (s *Store) Size() uint {
	if s.size == 0 {
		return DefaultSize
	}
	return s.size
}

// Path returns the file holding the thumbnail of trackID, writing it from
// data on first use.
func (s *Store) Path(trackID int, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.paths[trackID]; ok {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	thumb, err := Thumbnail(data, s.Size())
	if err != nil {
		return "", err
	}

	p, err := s.filePath(trackID)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p, thumb, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write artwork")
	}

	s.paths[trackID] = p
	return p, nil
}

// URI returns a file:// URI for the thumbnail of trackID.
func (s *Store) URI(trackID int, data []byte) (string, error) {
	p, err := s.Path(trackID, data)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(p), nil
}

func (s *Store) filePath(trackID int) (string, error) {
	name := fmt.Sprintf("%d.jpg", trackID)
	if s.dir == "" {
		p, err := xdg.CacheFile(filepath.Join(s.app, "artwork", name))
		if err != nil {
			return "", errors.Wrap(err, "failed to resolve cache path")
		}
		return p, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create artwork directory")
	}
	return filepath.Join(s.dir, name), nil
}
