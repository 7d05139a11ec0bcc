package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const cloudinaryFolder = "events"

// CloudinaryStore stores blobs in Cloudinary. Refs are the secure delivery
// URLs, so rows stay readable without going back through the store.
type CloudinaryStore struct {
	client *cloudinary.Cloudinary
}

func NewCloudinaryStore(cloudinaryURL string) (*CloudinaryStore, error) {
	client, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary store: %w", err)
	}
	return &CloudinaryStore{client: client}, nil
}

func (s *CloudinaryStore) Put(ctx context.Context, r io.Reader, suggestedName string) (ref string, err error) {
	defer func() { observe("put", err) }()
	resp, err := s.client.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder: cloudinaryFolder,
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary store: upload: %w", err)
	}
	return resp.SecureURL, nil
}

// Delete destroys the blob behind ref. Cloudinary treats destroying a missing
// public ID as success, which matches the idempotent Delete contract.
func (s *CloudinaryStore) Delete(ctx context.Context, ref string) (err error) {
	defer func() { observe("delete", err) }()
	publicID, err := publicIDFromURL(ref)
	if err != nil {
		return fmt.Errorf("cloudinary store: %w", err)
	}
	if _, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("cloudinary store: destroy: %w", err)
	}
	return nil
}

// publicIDFromURL extracts the public ID from a Cloudinary delivery URL, e.g.
// https://res.cloudinary.com/demo/image/upload/v123/events/abc.jpg -> events/abc
func publicIDFromURL(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse ref %q: %w", ref, err)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	uploadIdx := -1
	for i, part := range parts {
		if part == "upload" {
			uploadIdx = i
			break
		}
	}
	if uploadIdx == -1 || uploadIdx+1 >= len(parts) {
		return "", fmt.Errorf("ref %q is not a cloudinary delivery URL", ref)
	}

	rest := parts[uploadIdx+1:]
	// Skip the version segment (v1234567890) if present.
	if len(rest) > 1 && strings.HasPrefix(rest[0], "v") && isDigits(rest[0][1:]) {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return "", fmt.Errorf("ref %q has no public ID", ref)
	}

	joined := path.Join(rest...)
	return strings.TrimSuffix(joined, path.Ext(joined)), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
