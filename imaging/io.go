package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format names an encoder.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// JPEGQuality is used when writing .jpg outputs.
const JPEGQuality = 95

// FormatFromPath picks an encoder from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".gif":
		return FormatGIF, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadImage decodes the file at path into a padded float32 image whose halo
// replicates the edge pixels.
func ReadImage(path string, halo int, limits Limits) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Decode(data, halo, limits)
}

// Decode is ReadImage for in-memory data. Dimensions are checked from the
// header before the pixels are decoded.
func Decode(data []byte, halo int, limits Limits) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidImage)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if err := ValidateDimensions(cfg.Width, cfg.Height, channelsFor(cfg.ColorModel), halo, limits); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return FromImage(src, halo, limits)
}

// FromImage converts src to a padded float32 image with values in [0, 255].
// Grayscale sources produce one channel, opaque color sources produce RGB
// and everything else produces non-premultiplied RGBA.
func FromImage(src image.Image, halo int, limits Limits) (*Image, error) {
	bounds := src.Bounds()
	channels := channelsOf(src)

	img, err := allocatePadded(bounds.Dx(), bounds.Dy(), channels, halo, limits)
	if err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, img.Width, img.Height)

	if channels == 1 {
		gray := image.NewGray(rect)
		draw.Draw(gray, rect, src, bounds.Min, draw.Src)
		for y := 0; y < img.Height; y++ {
			row := gray.Pix[y*gray.Stride : y*gray.Stride+img.Width]
			for x, v := range row {
				img.Set(x, y, 0, float32(v))
			}
		}
	} else {
		// NRGBA sources are read in place; converting them through draw
		// would premultiply and lose precision on translucent pixels.
		nrgba, ok := src.(*image.NRGBA)
		if !ok {
			nrgba = image.NewNRGBA(rect)
			draw.Draw(nrgba, rect, src, bounds.Min, draw.Src)
		}
		origin := nrgba.Bounds().Min
		for y := 0; y < img.Height; y++ {
			start := nrgba.PixOffset(origin.X, origin.Y+y)
			row := nrgba.Pix[start : start+img.Width*4]
			for x := 0; x < img.Width; x++ {
				for ch := 0; ch < channels; ch++ {
					img.Set(x, y, ch, float32(row[x*4+ch]))
				}
			}
		}
	}

	img.PadEdges()
	return img, nil
}

// ToImage converts the real pixels of img to an 8-bit image, rounding and
// clamping each value to [0, 255]. One channel maps to gray, two to gray
// with alpha, three to opaque RGB and four to RGBA.
func ToImage(img *Image) (image.Image, error) {
	rect := image.Rect(0, 0, img.Width, img.Height)

	switch img.Channels {
	case 1:
		gray := image.NewGray(rect)
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				gray.Pix[y*gray.Stride+x] = to8(img.At(x, y, 0))
			}
		}
		return gray, nil
	case 2, 3, 4:
		out := image.NewNRGBA(rect)
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				i := y*out.Stride + x*4
				var r, g, b, a uint8
				switch img.Channels {
				case 2:
					r = to8(img.At(x, y, 0))
					g, b, a = r, r, to8(img.At(x, y, 1))
				case 3:
					r, g, b, a = to8(img.At(x, y, 0)), to8(img.At(x, y, 1)), to8(img.At(x, y, 2)), 255
				default:
					r, g, b, a = to8(img.At(x, y, 0)), to8(img.At(x, y, 1)), to8(img.At(x, y, 2)), to8(img.At(x, y, 3))
				}
				out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = r, g, b, a
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %d channels", ErrUnsupportedFormat, img.Channels)
	}
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img *Image, format Format) error {
	out, err := ToImage(img)
	if err != nil {
		return err
	}

	switch format {
	case FormatPNG:
		return png.Encode(w, out)
	case FormatJPEG:
		return jpeg.Encode(w, out, &jpeg.Options{Quality: JPEGQuality})
	case FormatGIF:
		return gif.Encode(w, out, nil)
	case FormatBMP:
		return bmp.Encode(w, out)
	case FormatTIFF:
		return tiff.Encode(w, out, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteImage encodes img by the extension of path. The file is only created
// once encoding has succeeded.
func WriteImage(img *Image, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, img, format); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// channelsFor is the channel count implied by a color model alone: one for
// gray, three for models that cannot carry alpha, four otherwise.
func channelsFor(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.YCbCrModel, color.CMYKModel:
		return 3
	}
	if p, ok := m.(color.Palette); ok && opaquePalette(p) {
		return 3
	}
	return 4
}

// channelsOf refines channelsFor with the pixels: an RGBA source whose
// pixels are all opaque has no alpha worth blurring.
func channelsOf(src image.Image) int {
	n := channelsFor(src.ColorModel())
	if n != 4 {
		return n
	}
	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return n
}

func opaquePalette(p color.Palette) bool {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			return false
		}
	}
	return len(p) > 0
}

func to8(v float32) uint8 {
	r := math.Round(float64(v))
	if r <= 0 {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r)
}
