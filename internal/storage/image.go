package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

const (
	MaxImageWidth  = 1280
	MaxUploadBytes = 10 << 20
	imageQuality   = 85
)

var ErrImageTooLarge = errors.New("image exceeds upload limit")

// NormalizeImage decodes an uploaded image, downscales it to MaxImageWidth
// and re-encodes it as JPEG. EXIF orientation is applied before resizing.
func NormalizeImage(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxUploadBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxUploadBytes {
		return nil, ErrImageTooLarge
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("unsupported image: %w", err)
	}

	if img.Bounds().Dx() > MaxImageWidth {
		img = imaging.Resize(img, MaxImageWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(imageQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
