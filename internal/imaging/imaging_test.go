package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/models"

	"github.com/bep/imagemeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(128 + 127*math.Sin(float64(x)/37.0)*math.Cos(float64(y)/23.0))
			img.Set(x, y, color.NRGBA{R: v, G: 255 - v, B: v / 2, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	data := createTestPNG(t, 640, 480)
	info, err := Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, Info{Width: 640, Height: 480, Format: "png", Bytes: int64(len(data))}, info)

	_, err = Inspect([]byte("<html>not an image</html>"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProcessingFailed, apperrors.CodeOf(err))
}

func TestDerivativeGenerator_Generate(t *testing.T) {
	data := createTestPNG(t, 1600, 1200)
	g := NewDerivativeGenerator(nil, 0)

	r, err := g.Generate(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, r.Derivatives, 5)

	want := map[models.DerivativeSize][2]int{
		models.SizeThumbnail: {150, 112},
		models.SizeSmall:     {400, 300},
		models.SizeMedium:    {800, 600},
		models.SizeLarge:     {1200, 900},
		models.SizeOriginal:  {1600, 1200},
	}
	for _, d := range r.Derivatives {
		dims := want[d.Size]
		assert.Equal(t, dims[0], d.Width, d.Size)
		assert.Equal(t, dims[1], d.Height, d.Size)
		if d.Size == models.SizeOriginal {
			assert.Equal(t, data, d.Data)
			assert.Equal(t, "image/png", d.ContentType)
			continue
		}
		assert.Equal(t, "image/jpeg", d.ContentType)
		decoded, err := jpeg.Decode(bytes.NewReader(d.Data))
		require.NoError(t, err)
		assert.Equal(t, dims[0], decoded.Bounds().Dx())
	}
}

func TestDerivativeGenerator_NeverUpscales(t *testing.T) {
	r, err := NewDerivativeGenerator(nil, 80).Generate(context.Background(), createTestPNG(t, 300, 200))
	require.NoError(t, err)
	for _, d := range r.Derivatives {
		if d.Size == models.SizeThumbnail {
			assert.Equal(t, 150, d.Width)
			assert.Equal(t, 100, d.Height)
			continue
		}
		assert.Equal(t, 300, d.Width, d.Size)
		assert.Equal(t, 200, d.Height, d.Size)
	}
}

func TestDerivativeGenerator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDerivativeGenerator(nil, 0).Generate(ctx, createTestPNG(t, 200, 200))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDerivativeGenerator_RejectsOversizedOriginal(t *testing.T) {
	data := createTestPNG(t, 200, 150)

	_, err := NewDerivativeGenerator(nil, 0).WithMaxPixels(200*150 - 1).Generate(context.Background(), data)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProcessingFailed, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "200x150")

	r, err := NewDerivativeGenerator(nil, 0).WithMaxPixels(200*150).Generate(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 200, r.Info.Width)

	g := NewDerivativeGenerator(nil, 0).WithMaxPixels(-1)
	assert.Equal(t, DefaultMaxPixels, g.maxPixels)
}

func TestFit(t *testing.T) {
	w, h := fit(4000, 10, 150)
	assert.Equal(t, 150, w)
	assert.Equal(t, 1, h)
	w, h = fit(100, 50, 0)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
}

func TestFingerprint_DetectsResizedCopies(t *testing.T) {
	original := createTestPNG(t, 1200, 900)
	r, err := NewDerivativeGenerator(nil, 0).Generate(context.Background(), original)
	require.NoError(t, err)

	base, err := Fingerprint(r.Image)
	require.NoError(t, err)
	require.NotZero(t, base)

	var medium []byte
	for _, d := range r.Derivatives {
		if d.Size == models.SizeMedium {
			medium = d.Data
		}
	}
	img, _, err := Decode(medium)
	require.NoError(t, err)
	resized, err := Fingerprint(img)
	require.NoError(t, err)

	assert.Less(t, Distance(base, resized), DuplicateDistance)
	assert.True(t, IsDuplicate(resized, []uint64{base}, DuplicateDistance))
	assert.Equal(t, 64, Distance(base, ^base))
	assert.False(t, IsDuplicate(base, []uint64{^base}, DuplicateDistance))
	assert.False(t, IsDuplicate(0, []uint64{0}, DuplicateDistance))
}

func TestReadRights_NoMetadata(t *testing.T) {
	assert.Nil(t, ReadRights(nil))
	assert.Nil(t, ReadRights(createTestPNG(t, 20, 20)))
}

func TestRights_SetAndStockAgency(t *testing.T) {
	r := &Rights{}
	assert.True(t, r.set(imagemeta.TagInfo{Source: imagemeta.EXIF, Tag: "Artist", Value: "Jane Doe"}))
	assert.True(t, r.set(imagemeta.TagInfo{Source: imagemeta.XMP, Tag: "License", Value: []string{"https://creativecommons.org/licenses/by-sa/4.0/"}}))
	assert.True(t, r.set(imagemeta.TagInfo{Source: imagemeta.XMP, Tag: "Marked", Value: true}))
	assert.False(t, r.set(imagemeta.TagInfo{Source: imagemeta.IPTC, Tag: "Credit", Value: 42}))

	assert.Equal(t, "Jane Doe", r.Artist)
	assert.True(t, r.Marked)
	assert.Empty(t, r.StockAgency())

	lic := r.License()
	assert.Equal(t, "CC BY-SA 4.0", lic.Name)
	assert.Equal(t, "Jane Doe", lic.Author)
	assert.Equal(t, "Photo by Jane Doe", lic.Attribution)

	stock := &Rights{Credit: "Getty Images / iStock"}
	assert.Equal(t, "getty images", stock.StockAgency())
	assert.Empty(t, (*Rights)(nil).StockAgency())
	assert.True(t, (*Rights)(nil).License().IsZero())
}

func TestLicenseName(t *testing.T) {
	assert.Equal(t, "CC0", LicenseName("https://creativecommons.org/publicdomain/zero/1.0/"))
	assert.Equal(t, "Public Domain", LicenseName("https://creativecommons.org/publicdomain/mark/1.0/"))
	assert.Equal(t, "CC BY 2.0", LicenseName("//creativecommons.org/licenses/by/2.0"))
	assert.Empty(t, LicenseName("https://example.com/terms"))
}
