// Package imaging cuts single candidates out of composite grid images.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

type Quadrant string

const (
	TopLeft     Quadrant = "topLeft"
	TopRight    Quadrant = "topRight"
	BottomLeft  Quadrant = "bottomLeft"
	BottomRight Quadrant = "bottomRight"
)

type Result struct {
	PNG            []byte
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
	SourceFormat   string
}

// ExtractQuadrant decodes a 2x2 grid image and returns quadrant q encoded
// as PNG. Quadrant size is floor(width/2) x floor(height/2).
func ExtractQuadrant(data []byte, q Quadrant) (*Result, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image %dx%d too small to split", b.Dx(), b.Dy())
	}

	var origin image.Point
	switch q {
	case TopLeft:
		origin = b.Min
	case TopRight:
		origin = image.Pt(b.Min.X+w, b.Min.Y)
	case BottomLeft:
		origin = image.Pt(b.Min.X, b.Min.Y+h)
	case BottomRight:
		origin = image.Pt(b.Min.X+w, b.Min.Y+h)
	default:
		return nil, fmt.Errorf("unknown quadrant %q", q)
	}

	cropped := imaging.Crop(src, image.Rect(origin.X, origin.Y, origin.X+w, origin.Y+h))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &Result{
		PNG:            buf.Bytes(),
		Width:          w,
		Height:         h,
		OriginalWidth:  b.Dx(),
		OriginalHeight: b.Dy(),
		SourceFormat:   format,
	}, nil
}
