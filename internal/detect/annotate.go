package detect

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	threatColor  = color.RGBA{R: 220, G: 38, B: 38, A: 255}
	personColor  = color.RGBA{R: 34, G: 197, B: 94, A: 255}
	neutralColor = color.RGBA{R: 59, G: 130, B: 246, A: 255}
	labelText    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Annotator draws detection overlays onto frame copies.
type Annotator struct {
	classifier  *Classifier
	jpegQuality int
}

// NewAnnotator returns an annotator that colors boxes by category and
// encodes the result at the given JPEG quality.
func NewAnnotator(classifier *Classifier, jpegQuality int) *Annotator {
	return &Annotator{classifier: classifier, jpegQuality: jpegQuality}
}

// Annotate draws one box and label per detection onto a copy of the frame
// and returns it JPEG-encoded. The input frame is never modified.
func (a *Annotator) Annotate(frame image.Image, detections []Detection) ([]byte, error) {
	bounds := frame.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, frame, bounds.Min, draw.Src)

	for _, det := range detections {
		cat := a.classifier.Classify(det.Label)
		col, thickness := boxStyle(cat)
		drawRect(canvas, det.Box, col, thickness)
		drawLabel(canvas, det, col)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: a.jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode annotated frame: %w", err)
	}
	return buf.Bytes(), nil
}

func boxStyle(cat Category) (color.RGBA, int) {
	switch cat {
	case CategoryThreat:
		return threatColor, 3
	case CategoryPerson:
		return personColor, 2
	default:
		return neutralColor, 1
	}
}

func drawRect(img *image.RGBA, box Box, col color.RGBA, thickness int) {
	for t := 0; t < thickness; t++ {
		x1, y1 := box.X1+t, box.Y1+t
		x2, y2 := box.X2-t, box.Y2-t
		if x2 <= x1 || y2 <= y1 {
			break
		}
		for x := x1; x <= x2; x++ {
			img.Set(x, y1, col)
			img.Set(x, y2, col)
		}
		for y := y1; y <= y2; y++ {
			img.Set(x1, y, col)
			img.Set(x2, y, col)
		}
	}
}

func drawLabel(img *image.RGBA, det Detection, col color.RGBA) {
	face := basicfont.Face7x13
	text := fmt.Sprintf("%s: %.2f", det.Label, det.Confidence)
	width := font.MeasureString(face, text).Ceil()

	// Place the tag above the box, or below when it would leave the frame.
	x := det.Box.X1
	y := det.Box.Y1 - face.Height - 4
	if y < img.Bounds().Min.Y {
		y = det.Box.Y2 + 4
	}

	bg := image.Rect(x, y, x+width+4, y+face.Height+4)
	draw.Draw(img, bg.Intersect(img.Bounds()), &image.Uniform{C: col}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: labelText},
		Face: face,
		Dot:  fixed.P(x+2, y+face.Ascent+2),
	}
	drawer.DrawString(text)
}
