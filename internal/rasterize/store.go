package rasterize

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// SnapshotID derives a deterministic, filesystem-safe name from slide index and domPath.
// Without a path a random id is used.
func SnapshotID(slide int, domPath string) string {
	if domPath == "" {
		return fmt.Sprintf("slide-%d_%s", slide, uuid.NewString())
	}
	return fmt.Sprintf("slide-%d_%s", slide, strings.ReplaceAll(domPath, ".", "-"))
}

// Store writes snapshots as PNG files under one directory
type Store struct {
	dir string
}

// NewStore creates dir if needed
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the snapshot directory
func (s *Store) Dir() string {
	return s.dir
}

// Save writes data as <dir>/<id>.png and returns the path
func (s *Store) Save(id string, data []byte) (string, error) {
	path := filepath.Join(s.dir, id+".png")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}

// fitImage resamples a PNG to width x height when its size differs.
// Screenshots come back in device pixels, so any scale other than 1 needs this.
func fitImage(data []byte, width, height int) ([]byte, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png header: %w", err)
	}
	if width <= 0 || height <= 0 || (cfg.Width == width && cfg.Height == height) {
		return data, nil
	}

	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
