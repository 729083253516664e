// Package imagestore uploads post cover images to S3-compatible object
// storage and returns the URL the image is served from.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxImageSize     = 10 * 1024 * 1024 // 10 MB
	imagePathPrefix  = "posts"
	defaultExtension = ".bin"
)

var (
	ErrFileTooBig      = errors.New("image exceeds 10MB limit")
	ErrInvalidFileType = errors.New("invalid file type, only JPEG, PNG, GIF and WebP images are allowed")
	ErrEmptyImage      = errors.New("image is empty")
	ErrUploadFailed    = errors.New("failed to upload image")

	allowedContentTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}
)

// Store persists an image and reports where it can be fetched.
type Store interface {
	Upload(ctx context.Context, image Image) (string, error)
}

type Image struct {
	Data        []byte
	ContentType string
	Owner       string
}

// validate normalizes the content type and rejects images we never store.
func validate(image Image) (string, error) {
	if len(image.Data) == 0 {
		return "", ErrEmptyImage
	}
	if len(image.Data) > maxImageSize {
		return "", ErrFileTooBig
	}
	contentType := strings.ToLower(strings.TrimSpace(image.ContentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return "", ErrInvalidFileType
	}
	return contentType, nil
}

func objectKey(owner, contentType string) string {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		ext = defaultExtension
	}
	owner = strings.Trim(strings.ReplaceAll(owner, "/", "_"), " ")
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("%s/%s/%s%s", imagePathPrefix, owner, uuid.NewString(), ext)
}

func joinURL(base, bucket, key string) string {
	base = strings.TrimRight(base, "/")
	if bucket == "" {
		return base + "/" + key
	}
	return base + "/" + bucket + "/" + key
}
