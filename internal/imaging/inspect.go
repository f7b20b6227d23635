package imaging

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	apperrors "image-collector/internal/common/errors"

	_ "golang.org/x/image/webp"
)

// Info describes an encoded image without decoding its pixels.
type Info struct {
	Width  int
	Height int
	Format string
	Bytes  int64
}

// Inspect reads the image header.
func Inspect(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, apperrors.NewProcessingFailedError("inspect", err)
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format, Bytes: int64(len(data))}, nil
}

// Decode fully decodes data.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperrors.NewProcessingFailedError("decode", err)
	}
	return img, format, nil
}

// ContentType maps a decoder format name to a MIME type.
func ContentType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Extension maps a decoder format name to a file extension.
func Extension(format string) string {
	switch format {
	case "jpeg", "jpg":
		return ".jpg"
	case "png", "gif", "webp":
		return "." + format
	default:
		return ".bin"
	}
}
