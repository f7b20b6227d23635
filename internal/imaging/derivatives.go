package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/models"

	"golang.org/x/image/draw"
)

const (
	defaultJPEGQuality = 85
	// DefaultMaxPixels bounds width*height of a decodable original.
	DefaultMaxPixels = 40_000_000
)

// SizeSpec bounds the longest side of one derivative.
type SizeSpec struct {
	Size    models.DerivativeSize
	MaxSide int
}

// DefaultSizes is the fixed derivative set. The original is always kept
// alongside these.
var DefaultSizes = []SizeSpec{
	{Size: models.SizeThumbnail, MaxSide: 150},
	{Size: models.SizeSmall, MaxSide: 400},
	{Size: models.SizeMedium, MaxSide: 800},
	{Size: models.SizeLarge, MaxSide: 1200},
}

// Derivative is one encoded variant ready for storage.
type Derivative struct {
	Size        models.DerivativeSize
	Data        []byte
	Width       int
	Height      int
	ContentType string
	Extension   string
}

// Rendition is the result of processing one original.
type Rendition struct {
	Info        Info
	Image       image.Image
	Derivatives []Derivative
}

type DerivativeGenerator struct {
	sizes     []SizeSpec
	quality   int
	maxPixels int
}

func NewDerivativeGenerator(sizes []SizeSpec, quality int) *DerivativeGenerator {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	return &DerivativeGenerator{sizes: sizes, quality: quality, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels sets the largest original, in pixels, Generate will decode.
// Non-positive values keep the default.
func (g *DerivativeGenerator) WithMaxPixels(n int) *DerivativeGenerator {
	if n > 0 {
		g.maxPixels = n
	}
	return g
}

// Generate decodes data and produces the resized JPEG set plus the untouched
// original. Images are never upscaled; transparent areas are flattened onto
// white.
func (g *DerivativeGenerator) Generate(ctx context.Context, data []byte) (*Rendition, error) {
	info, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	if pixels := int64(info.Width) * int64(info.Height); pixels > int64(g.maxPixels) {
		return nil, apperrors.NewProcessingFailedError("decode",
			fmt.Errorf("image is %dx%d, over the %d pixel limit", info.Width, info.Height, g.maxPixels))
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	out := &Rendition{Info: info, Image: img}
	for _, spec := range g.sizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := g.render(img, spec)
		if err != nil {
			return nil, apperrors.NewProcessingFailedError("derivative "+string(spec.Size), err)
		}
		out.Derivatives = append(out.Derivatives, d)
	}
	out.Derivatives = append(out.Derivatives, Derivative{
		Size:        models.SizeOriginal,
		Data:        data,
		Width:       info.Width,
		Height:      info.Height,
		ContentType: ContentType(info.Format),
		Extension:   Extension(info.Format),
	})
	return out, nil
}

func (g *DerivativeGenerator) render(src image.Image, spec SizeSpec) (Derivative, error) {
	sb := src.Bounds()
	w, h := fit(sb.Dx(), sb.Dy(), spec.MaxSide)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: g.quality}); err != nil {
		return Derivative{}, err
	}
	return Derivative{
		Size:        spec.Size,
		Data:        buf.Bytes(),
		Width:       w,
		Height:      h,
		ContentType: "image/jpeg",
		Extension:   ".jpg",
	}, nil
}

// fit scales (w, h) so the longest side is at most maxSide.
func fit(w, h, maxSide int) (int, int) {
	longest := max(w, h)
	if maxSide <= 0 || longest <= maxSide {
		return w, h
	}
	nw := w * maxSide / longest
	nh := h * maxSide / longest
	return max(nw, 1), max(nh, 1)
}
