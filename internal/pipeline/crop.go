package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/your-org/facebot/internal/models"
)

// CropRect converts a face polygon into the crop rectangle spanned by the
// top-left (vertex 0) and bottom-right (vertex 2) corners. Swapped corners
// are normalized; a zero-area rectangle is malformed.
func CropRect(box models.BoundingBox) (image.Rectangle, error) {
	if len(box.Vertices) != 4 {
		return image.Rectangle{}, fmt.Errorf("%w: want 4 vertices, got %d", ErrMalformedTask, len(box.Vertices))
	}
	v0, v2 := box.Vertices[0], box.Vertices[2]
	left, right := minmax(int(v0.X), int(v2.X))
	upper, lower := minmax(int(v0.Y), int(v2.Y))
	if right <= left || lower <= upper {
		return image.Rectangle{}, fmt.Errorf("%w: empty box (%d,%d)-(%d,%d)", ErrMalformedTask, left, upper, right, lower)
	}
	return image.Rect(left, upper, right, lower), nil
}

func minmax(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// DecodeImage decodes JPEG, PNG, GIF, BMP or WebP data.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrMalformedTask, err)
	}
	return img, nil
}

// Crop copies rect out of img. The result starts at (0,0) and is always
// rect.Size(); pixels of rect that fall outside the image stay zero.
func Crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("%w: empty crop %v", ErrMalformedTask, rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))

	bounds := img.Bounds()
	src := rect.Add(bounds.Min)
	if overlap := src.Intersect(bounds); !overlap.Empty() {
		draw.Draw(dst, overlap.Sub(src.Min), img, overlap.Min, draw.Src)
	}
	return dst, nil
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
