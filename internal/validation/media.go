package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MediaKind is the coarse type of uploaded story content.
type MediaKind string

const (
	MediaImage MediaKind = "IMAGE"
	MediaVideo MediaKind = "VIDEO"
)

// MaxMediaSize caps a single story upload.
const MaxMediaSize int64 = 50 << 20 // 50MB

var ErrUnsupportedMedia = errors.New("only image and video content is supported")

var (
	videoExtensions = map[string]bool{
		".mp4": true,
		".mov": true,
		".avi": true,
	}
	imageExtensions = map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
	}
)

// MediaKindOf infers the media kind from the MIME type prefix and falls
// back to the file extension when the MIME type is missing or generic.
func MediaKindOf(filename, mimeType string) (MediaKind, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaImage, nil
	case strings.HasPrefix(mimeType, "video/"):
		return MediaVideo, nil
	case mimeType != "" && mimeType != "application/octet-stream":
		return "", fmt.Errorf("%w (got %s)", ErrUnsupportedMedia, mimeType)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case videoExtensions[ext]:
		return MediaVideo, nil
	case imageExtensions[ext]:
		return MediaImage, nil
	}

	return "", fmt.Errorf("%w (extension %q)", ErrUnsupportedMedia, ext)
}

// ValidateMediaSize rejects empty or oversized uploads
func ValidateMediaSize(size int64) error {
	if size <= 0 {
		return errors.New("file is empty")
	}
	if size > MaxMediaSize {
		return fmt.Errorf("file too large: maximum size is %d MB", MaxMediaSize/(1<<20))
	}
	return nil
}
