package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradient builds a 4x3 translucent RGBA test image whose pixels are unique.
func gradient() *image.NRGBA {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(10*x + y), G: uint8(50 + x), B: uint8(100 + y), A: uint8(200 + x + y)})
		}
	}
	return src
}

func TestValidateDimensions(t *testing.T) {
	limits := Limits{MaxWidth: 100, MaxHeight: 50, MaxChannels: 4}

	tests := []struct {
		name     string
		w, h, c  int
		halo     int
		limits   Limits
		want     error
	}{
		{name: "fits", w: 100, h: 50, c: 4, halo: 22, limits: limits},
		{name: "zero width", w: 0, h: 10, c: 1, limits: limits, want: ErrInvalidDimensions},
		{name: "negative halo", w: 10, h: 10, c: 1, halo: -1, limits: limits, want: ErrInvalidDimensions},
		{name: "too wide", w: 101, h: 10, c: 1, limits: limits, want: ErrSizeLimitExceeded},
		{name: "too tall", w: 10, h: 51, c: 1, limits: limits, want: ErrSizeLimitExceeded},
		{name: "too many channels", w: 10, h: 10, c: 5, limits: limits, want: ErrSizeLimitExceeded},
		{name: "element overflow", w: 1 << 16, h: 1 << 16, c: 4, limits: Limits{}, want: ErrSizeLimitExceeded},
		{name: "no limits", w: 5000, h: 5000, c: 8, limits: Limits{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDimensions(tt.w, tt.h, tt.c, tt.halo, tt.limits)
			if tt.want == nil {
				if err != nil {
					t.Errorf("ValidateDimensions() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateDimensions() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFromImage_PadsWithEdgeReplication(t *testing.T) {
	img, err := FromImage(gradient(), 2, DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Equal(t, 4, img.Channels)
	assert.Equal(t, 8, img.PaddedWidth())
	assert.Equal(t, 7, img.PaddedHeight())
	require.Len(t, img.Pix, 8*7*4)

	assert.Equal(t, float32(21), img.At(2, 1, 0))
	assert.Equal(t, float32(203), img.At(2, 1, 3))

	for _, tc := range []struct{ x, y, srcX, srcY int }{
		{-2, -2, 0, 0},
		{-1, 1, 0, 1},
		{5, 1, 3, 1},
		{5, 4, 3, 2},
		{2, -1, 2, 0},
		{2, 4, 2, 2},
	} {
		for ch := 0; ch < 4; ch++ {
			if got, want := img.At(tc.x, tc.y, ch), img.At(tc.srcX, tc.srcY, ch); got != want {
				t.Errorf("At(%d,%d,%d) = %v, want edge value %v", tc.x, tc.y, ch, got, want)
			}
		}
	}
}

func TestFromImage_Gray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 2))
	src.Pix = []uint8{0, 128, 255, 10, 20, 30}

	img, err := FromImage(src, 0, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 1, img.Channels)
	assert.Equal(t, []float32{0, 128, 255, 10, 20, 30}, img.Pix)
}

func TestFromImage_OpaqueSourcesDropAlpha(t *testing.T) {
	opaque := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range opaque.Pix {
		opaque.Pix[i] = 255
	}
	opaque.SetNRGBA(1, 0, color.NRGBA{R: 7, G: 8, B: 9, A: 255})

	ycbcr := image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio444)

	paletted := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{
		color.RGBA{R: 255, A: 255},
		color.RGBA{B: 255, A: 255},
	})
	translucent := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{
		color.RGBA{R: 255, A: 255},
		color.NRGBA{B: 255, A: 10},
	})

	tests := []struct {
		name string
		src  image.Image
		want int
	}{
		{"opaque nrgba", opaque, 3},
		{"ycbcr", ycbcr, 3},
		{"opaque palette", paletted, 3},
		{"translucent palette", translucent, 4},
		{"translucent nrgba", gradient(), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := FromImage(tt.src, 1, DefaultLimits())
			require.NoError(t, err)
			if img.Channels != tt.want {
				t.Errorf("FromImage().Channels = %d, want %d", img.Channels, tt.want)
			}
			require.Len(t, img.Pix, 4*4*tt.want)
		})
	}

	img, err := FromImage(opaque, 0, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 8, 9}, []float32{img.At(1, 0, 0), img.At(1, 0, 1), img.At(1, 0, 2)})

	out, err := ToImage(img)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 7, G: 8, B: 9, A: 255}, out.At(1, 0))
}

func TestImageRows(t *testing.T) {
	img, err := FromImage(gradient(), 1, DefaultLimits())
	require.NoError(t, err)

	v, err := img.Rows(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Rows())
	assert.Equal(t, 6, v.Width())
	assert.Equal(t, 4, v.Channels())
	require.Len(t, v.Row(0), 24)

	// Stored row 1 is image row 0; column 1 is image column 0.
	assert.Equal(t, img.At(0, 0, 0), v.Row(0)[4])
	assert.Equal(t, img.At(3, 2, 2), v.Row(2)[4*4+2])

	for _, tc := range []struct{ start, count int }{{-1, 2}, {0, 0}, {4, 2}, {0, 6}} {
		if _, err := img.Rows(tc.start, tc.count); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("Rows(%d,%d) error = %v, want ErrOutOfBounds", tc.start, tc.count, err)
		}
	}
}

func TestViewWritesThrough(t *testing.T) {
	img, err := Allocate(2, 4, 1)
	require.NoError(t, err)

	v, err := img.Rows(2, 2)
	require.NoError(t, err)
	v.Row(1)[1] = 7

	assert.Equal(t, float32(7), img.At(1, 3, 0))
}

func TestEncodeDecode_PNGRoundTrip(t *testing.T) {
	img, err := FromImage(gradient(), 0, DefaultLimits())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img, FormatPNG))

	back, err := Decode(buf.Bytes(), 3, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 3, back.Halo)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			for ch := 0; ch < 4; ch++ {
				if back.At(x, y, ch) != img.At(x, y, ch) {
					t.Fatalf("pixel (%d,%d,%d) = %v, want %v", x, y, ch, back.At(x, y, ch), img.At(x, y, ch))
				}
			}
		}
	}
}

func TestDecode_RejectsBeforeAllocating(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient()))

	_, err := Decode(buf.Bytes(), 0, Limits{MaxWidth: 2, MaxHeight: 100, MaxChannels: 4})
	assert.ErrorIs(t, err, ErrSizeLimitExceeded)

	_, err = Decode([]byte("not an image"), 0, DefaultLimits())
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Decode(nil, 0, DefaultLimits())
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestToImage_ClampsAndRounds(t *testing.T) {
	img, err := Allocate(3, 1, 1)
	require.NoError(t, err)
	img.Set(0, 0, 0, -12)
	img.Set(1, 0, 0, 99.6)
	img.Set(2, 0, 0, 300)

	out, err := ToImage(img)
	require.NoError(t, err)
	gray, ok := out.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, []uint8{0, 100, 255}, gray.Pix)

	wide, err := Allocate(1, 1, 5)
	require.NoError(t, err)
	_, err = ToImage(wide)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{path: "a.png", want: FormatPNG},
		{path: "a.JPG", want: FormatJPEG},
		{path: "a.jpeg", want: FormatJPEG},
		{path: "a.gif", want: FormatGIF},
		{path: "a.bmp", want: FormatBMP},
		{path: "a.tif", want: FormatTIFF},
		{path: "a.webp", wantErr: true},
		{path: "noext", wantErr: true},
	}

	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("FormatFromPath(%q) error = %v, want ErrUnsupportedFormat", tt.path, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("FormatFromPath(%q) = %q, %v, want %q", tt.path, got, err, tt.want)
		}
	}
}

func TestWriteImage_FormatsAndFailures(t *testing.T) {
	dir := t.TempDir()
	img, err := FromImage(gradient(), 0, DefaultLimits())
	require.NoError(t, err)

	for _, name := range []string{"out.png", "out.jpg", "out.bmp", "out.tiff", "out.gif"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteImage(img, path), name)

		back, err := ReadImage(path, 0, DefaultLimits())
		require.NoError(t, err, name)
		assert.Equal(t, img.Width, back.Width, name)
		assert.Equal(t, img.Height, back.Height, name)
	}

	bad := filepath.Join(dir, "out.webp")
	assert.ErrorIs(t, WriteImage(img, bad), ErrUnsupportedFormat)
	_, statErr := os.Stat(bad)
	assert.True(t, os.IsNotExist(statErr), "no file should be created on encode failure")
}
