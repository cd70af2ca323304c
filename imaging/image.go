// Package imaging holds the float32 pixel model used by the blur pipeline and
// the decode/encode helpers that move images in and out of it.
//
// An Image stores rows of interleaved channels. Input images carry a halo of
// replicated edge pixels on every side so a convolution footprint centred on
// any real pixel stays inside the buffer. Views address row ranges of an
// image without copying and carry their own bounds.
package imaging

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidImage      = errors.New("imaging: invalid image data")
	ErrUnsupportedFormat = errors.New("imaging: unsupported image format")
	ErrInvalidDimensions = errors.New("imaging: invalid dimensions")
	ErrSizeLimitExceeded = errors.New("imaging: image exceeds size limits")
	ErrOutOfBounds       = errors.New("imaging: view out of bounds")
)

// Limits bounds the dimensions accepted before any pixel buffer is allocated.
type Limits struct {
	MaxWidth    int
	MaxHeight   int
	MaxChannels int
}

// DefaultLimits returns the bounds used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxWidth:    16384,
		MaxHeight:   16384,
		MaxChannels: 64,
	}
}

// ValidateDimensions rejects shapes that are empty, exceed limits, or whose
// padded element count would not fit a single buffer.
func ValidateDimensions(width, height, channels, halo int, limits Limits) error {
	if width <= 0 || height <= 0 || channels <= 0 || halo < 0 {
		return fmt.Errorf("%w: %dx%d with %d channels, halo %d",
			ErrInvalidDimensions, width, height, channels, halo)
	}
	if limits.MaxWidth > 0 && width > limits.MaxWidth {
		return fmt.Errorf("%w: width %d > %d", ErrSizeLimitExceeded, width, limits.MaxWidth)
	}
	if limits.MaxHeight > 0 && height > limits.MaxHeight {
		return fmt.Errorf("%w: height %d > %d", ErrSizeLimitExceeded, height, limits.MaxHeight)
	}
	if limits.MaxChannels > 0 && channels > limits.MaxChannels {
		return fmt.Errorf("%w: %d channels > %d", ErrSizeLimitExceeded, channels, limits.MaxChannels)
	}

	cols := int64(width) + 2*int64(halo)
	rows := int64(height) + 2*int64(halo)
	if cols*rows*int64(channels) > math.MaxInt32 {
		return fmt.Errorf("%w: %d x %d x %d elements", ErrSizeLimitExceeded, cols, rows, channels)
	}
	return nil
}

// Image is a row-major float32 raster with an optional halo border.
// Width and Height describe the real pixels; Pix holds
// (Height+2*Halo) rows of (Width+2*Halo)*Channels values.
type Image struct {
	Width    int
	Height   int
	Channels int
	Halo     int
	Pix      []float32
}

// Allocate returns a zeroed image without a halo.
func Allocate(width, height, channels int) (*Image, error) {
	return allocatePadded(width, height, channels, 0, Limits{})
}

func allocatePadded(width, height, channels, halo int, limits Limits) (*Image, error) {
	if err := ValidateDimensions(width, height, channels, halo, limits); err != nil {
		return nil, err
	}
	img := &Image{Width: width, Height: height, Channels: channels, Halo: halo}
	img.Pix = make([]float32, img.Stride()*img.PaddedHeight())
	return img, nil
}

// PaddedWidth is the number of pixels per stored row.
func (img *Image) PaddedWidth() int {
	return img.Width + 2*img.Halo
}

// PaddedHeight is the number of stored rows.
func (img *Image) PaddedHeight() int {
	return img.Height + 2*img.Halo
}

// Stride is the number of float32 values per stored row.
func (img *Image) Stride() int {
	return img.PaddedWidth() * img.Channels
}

func (img *Image) offset(x, y, ch int) int {
	return (y+img.Halo)*img.Stride() + (x+img.Halo)*img.Channels + ch
}

// At returns channel ch of the pixel at (x, y) in image coordinates.
// Coordinates inside the halo (down to -Halo) are valid.
func (img *Image) At(x, y, ch int) float32 {
	return img.Pix[img.offset(x, y, ch)]
}

// Set writes channel ch of the pixel at (x, y).
func (img *Image) Set(x, y, ch int, v float32) {
	img.Pix[img.offset(x, y, ch)] = v
}

// Fill sets every stored value of channel ch, halo included.
func (img *Image) Fill(ch int, v float32) {
	for i := ch; i < len(img.Pix); i += img.Channels {
		img.Pix[i] = v
	}
}

// Rows returns a view over count stored rows starting at stored row start.
// For a padded image stored row 0 is the top halo row.
func (img *Image) Rows(start, count int) (View, error) {
	if start < 0 || count <= 0 || start+count > img.PaddedHeight() {
		return View{}, fmt.Errorf("%w: rows [%d,%d) of %d",
			ErrOutOfBounds, start, start+count, img.PaddedHeight())
	}
	stride := img.Stride()
	return View{
		pix:      img.Pix[start*stride : (start+count)*stride],
		rows:     count,
		width:    img.PaddedWidth(),
		channels: img.Channels,
		stride:   stride,
	}, nil
}

// PadEdges fills the halo by replicating the nearest edge pixel.
func (img *Image) PadEdges() {
	h := img.Halo
	if h == 0 {
		return
	}
	c := img.Channels
	stride := img.Stride()

	for y := 0; y < img.Height; y++ {
		row := img.Pix[(y+h)*stride : (y+h+1)*stride]
		left := row[h*c : (h+1)*c]
		right := row[(h+img.Width-1)*c : (h+img.Width)*c]
		for x := 0; x < h; x++ {
			copy(row[x*c:(x+1)*c], left)
			copy(row[(h+img.Width+x)*c:(h+img.Width+x+1)*c], right)
		}
	}

	top := img.Pix[h*stride : (h+1)*stride]
	bottom := img.Pix[(h+img.Height-1)*stride : (h+img.Height)*stride]
	for y := 0; y < h; y++ {
		copy(img.Pix[y*stride:(y+1)*stride], top)
		copy(img.Pix[(h+img.Height+y)*stride:(h+img.Height+y+1)*stride], bottom)
	}
}

// View is a non-owning window over consecutive rows of an Image.
type View struct {
	pix      []float32
	rows     int
	width    int
	channels int
	stride   int
}

// Rows is the number of rows in the view.
func (v View) Rows() int { return v.rows }

// Width is the number of pixels per row.
func (v View) Width() int { return v.width }

// Channels is the number of values per pixel.
func (v View) Channels() int { return v.channels }

// Row returns the Width*Channels values of row r.
func (v View) Row(r int) []float32 {
	start := r * v.stride
	return v.pix[start : start+v.width*v.channels]
}
