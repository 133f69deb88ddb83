package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/your-org/facebot/internal/models"
)

func TestCropRectNormalizesCorners(t *testing.T) {
	tests := []struct {
		name string
		box  models.BoundingBox
		want image.Rectangle
	}{
		{"ordered", box(10, 20, 70, 80), image.Rect(10, 20, 70, 80)},
		{"swapped", box(70, 80, 10, 20), image.Rect(10, 20, 70, 80)},
		{"mixed", box(70, 20, 10, 80), image.Rect(10, 20, 70, 80)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CropRect(tc.box)
			if err != nil {
				t.Fatalf("CropRect: %v", err)
			}
			if got != tc.want {
				t.Fatalf("rect = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCropRectRejectsDegenerateBoxes(t *testing.T) {
	tests := []struct {
		name string
		box  models.BoundingBox
	}{
		{"zero width", box(10, 20, 10, 80)},
		{"zero height", box(10, 20, 70, 20)},
		{"point", box(5, 5, 5, 5)},
		{"three vertices", models.BoundingBox{Vertices: box(0, 0, 10, 10).Vertices[:3]}},
		{"no vertices", models.BoundingBox{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := CropRect(tc.box); !errors.Is(err, ErrMalformedTask) {
				t.Fatalf("err = %v, want ErrMalformedTask", err)
			}
		})
	}
}

func TestCropDimensionsMatchBox(t *testing.T) {
	img, err := DecodeImage(testPNG(t, 200, 100))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, b := range []models.BoundingBox{
		box(0, 0, 200, 100),
		box(10, 20, 70, 80),
		box(199, 99, 198, 98),
		box(50, 0, 51, 100),
	} {
		rect, err := CropRect(b)
		if err != nil {
			t.Fatalf("CropRect: %v", err)
		}
		face, err := Crop(img, rect)
		if err != nil {
			t.Fatalf("Crop(%v): %v", rect, err)
		}
		if got := face.Bounds().Size(); got != rect.Size() {
			t.Errorf("crop of %v has size %v, want %v", rect, got, rect.Size())
		}
	}
}

func TestCropCopiesPixels(t *testing.T) {
	img, _ := DecodeImage(testPNG(t, 50, 50))
	face, err := Crop(img, image.Rect(10, 20, 30, 40))
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	r, g, _, _ := face.At(0, 0).RGBA()
	if r>>8 != 10 || g>>8 != 20 {
		t.Fatalf("pixel (0,0) = (%d,%d), want source pixel (10,20)", r>>8, g>>8)
	}
}

func TestCropBeyondImageKeepsBoxSize(t *testing.T) {
	img, _ := DecodeImage(testPNG(t, 100, 100))

	tests := []struct {
		name    string
		rect    image.Rectangle
		inside  image.Point // crop pixel copied from the source
		source  image.Point
		outside image.Point // crop pixel past the image edge
	}{
		{"past bottom right", image.Rect(80, 80, 150, 150), image.Pt(5, 5), image.Pt(85, 85), image.Pt(30, 30)},
		{"before top left", image.Rect(-10, -10, 30, 30), image.Pt(15, 12), image.Pt(5, 2), image.Pt(3, 3)},
		{"fully outside", image.Rect(200, 200, 260, 230), image.Pt(-1, -1), image.Point{}, image.Pt(0, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			face, err := Crop(img, tc.rect)
			if err != nil {
				t.Fatalf("Crop: %v", err)
			}
			if got := face.Bounds().Size(); got != tc.rect.Size() {
				t.Fatalf("size = %v, want %v", got, tc.rect.Size())
			}
			if tc.inside.X >= 0 {
				r, g, _, _ := face.At(tc.inside.X, tc.inside.Y).RGBA()
				if int(r>>8) != tc.source.X || int(g>>8) != tc.source.Y {
					t.Errorf("pixel %v = (%d,%d), want source pixel %v", tc.inside, r>>8, g>>8, tc.source)
				}
			}
			if r, g, b, a := face.At(tc.outside.X, tc.outside.Y).RGBA(); r|g|b|a != 0 {
				t.Errorf("pixel %v outside the image = (%d,%d,%d,%d), want zero", tc.outside, r, g, b, a)
			}
		})
	}
}

func TestEncodeJPEGRoundTrip(t *testing.T) {
	img, _ := DecodeImage(testPNG(t, 40, 30))
	data, err := EncodeJPEG(img, 90)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if decoded.Bounds().Size() != image.Pt(40, 30) {
		t.Fatalf("size = %v", decoded.Bounds().Size())
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	if _, err := DecodeImage([]byte("not an image")); !errors.Is(err, ErrMalformedTask) {
		t.Fatalf("err = %v, want ErrMalformedTask", err)
	}
}
