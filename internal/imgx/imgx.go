// Package imgx decodes image files for pixel counting.
//
// JPEG, PNG and GIF come from the standard library. BMP, TIFF and WebP are
// registered from golang.org/x/image.
package imgx

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"os"

	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP

	"github.com/JakeFAU/toprgb/internal/toprgb"
)

// Decoder implements toprgb.Decoder over the registered image formats.
type Decoder struct{}

// New returns a Decoder.
func New() *Decoder {
	return &Decoder{}
}

// DecodeFile reads and decodes the image at path. Unrecognized content is
// reported as toprgb.ErrUnsupportedFormat.
func (d *Decoder) DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %s", toprgb.ErrUnsupportedFormat, path)
		}
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("decode %s image: empty bounds %v", format, b)
	}
	return img, nil
}
