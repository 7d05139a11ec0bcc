package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStore writes blobs under a local directory and mints refs below a URL
// base path, e.g. /uploads/5f3a...-poster.png.
type DiskStore struct {
	dir      string
	basePath string
}

func NewDiskStore(dir, basePath string) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk store: dir is required")
	}
	basePath = "/" + strings.Trim(basePath, "/")
	if basePath == "/" {
		return nil, fmt.Errorf("disk store: base path is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk store: create dir: %w", err)
	}
	return &DiskStore{dir: dir, basePath: basePath}, nil
}

func (s *DiskStore) Put(ctx context.Context, r io.Reader, suggestedName string) (ref string, err error) {
	defer func() { observe("put", err) }()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString()
	if ext := sanitizeExt(suggestedName); ext != "" {
		name += ext
	}

	target := filepath.Join(s.dir, name)
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("disk store: create blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("disk store: write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("disk store: close blob: %w", err)
	}
	return path.Join(s.basePath, name), nil
}

// Delete removes the blob for ref. Absent blobs count as deleted.
func (s *DiskStore) Delete(ctx context.Context, ref string) (err error) {
	defer func() { observe("delete", err) }()
	if err := ctx.Err(); err != nil {
		return err
	}

	name, ok := s.nameFromRef(ref)
	if !ok {
		return fmt.Errorf("disk store: ref %q not under %s", ref, s.basePath)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("disk store: delete blob: %w", err)
	}
	return nil
}

func (s *DiskStore) List(ctx context.Context) ([]BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("disk store: list blobs: %w", err)
	}

	blobs := make([]BlobInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, BlobInfo{
			Ref:     path.Join(s.basePath, entry.Name()),
			ModTime: info.ModTime(),
		})
	}
	return blobs, nil
}

func (s *DiskStore) nameFromRef(ref string) (string, bool) {
	trimmed := strings.TrimPrefix(ref, s.basePath+"/")
	if trimmed == ref || trimmed == "" {
		return "", false
	}
	// Refuse anything that could escape the upload dir.
	if trimmed != filepath.Base(trimmed) {
		return "", false
	}
	return trimmed, true
}

func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	default:
		return ""
	}
}
