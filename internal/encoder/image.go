package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

const jpegQuality = 90

// ResizeImage resizes an image to fit within maxSize (width or height) while
// keeping aspect ratio and re-encodes it as JPEG. It also returns the scale
// that maps the output back to the input (1 when not resized).
func ResizeImage(data []byte, maxSize int) ([]byte, float64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, 0, fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), 1, nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), float64(width) / float64(newWidth), nil
}

// LoadImageFile reads a photo from disk and prepares it for the encoder. The
// returned scale maps face boxes back to the photo, see ScaleFaces.
func LoadImageFile(path string, maxSize int) ([]byte, float64, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is a user supplied photo
	if err != nil {
		return nil, 0, fmt.Errorf("reading image: %w", err)
	}
	out, scale, err := ResizeImage(data, maxSize)
	if err != nil {
		return nil, 0, fmt.Errorf("preparing %s: %w", path, err)
	}
	return out, scale, nil
}

// ScaleFaces returns copies of faces with boxes multiplied by scale.
func ScaleFaces(faces []Face, scale float64) []Face {
	out := make([]Face, len(faces))
	for i, f := range faces {
		f.Box = image.Rect(
			int(math.Round(float64(f.Box.Min.X)*scale)),
			int(math.Round(float64(f.Box.Min.Y)*scale)),
			int(math.Round(float64(f.Box.Max.X)*scale)),
			int(math.Round(float64(f.Box.Max.Y)*scale)),
		)
		out[i] = f
	}
	return out
}
