// Package imaging prepares uploaded photos for embedding extraction.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ErrDecode is returned when the payload is not a decodable image.
var ErrDecode = errors.New("cannot decode image")

const jpegQuality = 85

// Info describes the decoded image. Width and Height are the dimensions as
// uploaded; PreparedWidth and PreparedHeight are the dimensions of the bytes
// Prepare returns, which differ only when downscaling happened. Face bounding
// boxes reported downstream are in prepared coordinates.
type Info struct {
	Width          int
	Height         int
	PreparedWidth  int
	PreparedHeight int
	Format         string // "jpeg", "png", "gif" or "bmp"
	Resized        bool
}

// Prepare decodes an uploaded image and downscales it to fit within maxSize
// on the longest edge, keeping aspect ratio. Images already within bounds are
// passed through byte for byte; downscaled images are re-encoded as JPEG.
func Prepare(data []byte, maxSize int) ([]byte, Info, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	info := Info{
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		PreparedWidth:  bounds.Dx(),
		PreparedHeight: bounds.Dy(),
		Format:         format,
	}

	if maxSize <= 0 || (info.Width <= maxSize && info.Height <= maxSize) {
		return data, info, nil
	}

	var newWidth, newHeight int
	if info.Width > info.Height {
		newWidth = maxSize
		newHeight = int(float64(info.Height) * float64(maxSize) / float64(info.Width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(info.Width) * float64(maxSize) / float64(info.Height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, Info{}, fmt.Errorf("failed to encode resized image: %w", err)
	}

	info.Resized = true
	info.PreparedWidth = newWidth
	info.PreparedHeight = newHeight
	return buf.Bytes(), info, nil
}
