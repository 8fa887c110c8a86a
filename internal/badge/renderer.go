// Package badge renders participant credentials. Composition is a pure
// function of the template and its inputs: identical fields and photo bytes
// always produce layout-identical output, so regeneration is safe.
package badge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"github.com/disintegration/imaging"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"festcred/internal/domain"
)

// Layout is expressed relative to the template so a resolution change in the
// deployed artwork does not require code changes. All values are fractions of
// template width or height.
const (
	photoSizePct = 0.32
	photoTopPct  = 0.10
	photoCorner  = 0.12

	nameBaselinePct  = 0.56
	orgBaselinePct   = 0.62
	eventBaselinePct = 0.68
	idBaselinePct    = 0.74

	textWidthPct = 0.84

	nameFontPct  = 0.050
	smallFontPct = 0.030
	minFontScale = 0.55

	qrSizePct   = 0.16
	qrMarginPct = 0.04
)

// Fields carries the registration data printed onto one credential.
type Fields struct {
	RegistrationID string
	Name           string
	Organization   string
	Events         []string
}

// Credential is a finished artifact.
type Credential struct {
	PNG    []byte
	Width  int
	Height int
}

// Renderer composites credentials over an immutable base template.
type Renderer struct {
	template *image.NRGBA
	regular  *opentype.Font
	bold     *opentype.Font
	titler   cases.Caser
}

// NewRenderer loads the base template from disk. A missing or unreadable
// template is a deployment defect, reported as a FatalAssetError so every job
// fails fast instead of degrading per registration.
func NewRenderer(templatePath string) (*Renderer, error) {
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, &domain.FatalAssetError{Asset: templatePath, Err: err}
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.FatalAssetError{Asset: templatePath, Err: fmt.Errorf("decode template: %w", err)}
	}
	return NewRendererFromImage(img)
}

// NewRendererFromImage builds a renderer over an in-memory template.
func NewRendererFromImage(img image.Image) (*Renderer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &Renderer{
		template: imaging.Clone(img),
		regular:  regular,
		bold:     bold,
		titler:   cases.Title(language.English),
	}, nil
}

// Size returns the template dimensions, which are also the output dimensions.
func (r *Renderer) Size() (int, int) {
	b := r.template.Bounds()
	return b.Dx(), b.Dy()
}

// Compose renders one credential. photo may be nil: a missing photo degrades
// to a generated placeholder instead of failing the participant.
func (r *Renderer) Compose(fields Fields, photo []byte) (*Credential, error) {
	width, height := r.Size()
	canvas := imaging.Clone(r.template)

	photoSize := int(float64(width) * photoSizePct)
	photoRect := image.Rect(0, 0, photoSize, photoSize).
		Add(image.Pt((width-photoSize)/2, int(float64(height)*photoTopPct)))

	var portrait *image.NRGBA
	if len(photo) > 0 {
		decoded, err := imaging.Decode(bytes.NewReader(photo))
		if err != nil {
			// A corrupt upload is treated like a missing one.
			portrait = r.placeholder(fields.Name, photoSize)
		} else {
			portrait = imaging.Fill(decoded, photoSize, photoSize, imaging.Center, imaging.Lanczos)
		}
	} else {
		portrait = r.placeholder(fields.Name, photoSize)
	}

	mask := roundedMask(photoSize, int(float64(photoSize)*photoCorner))
	draw.DrawMask(canvas, photoRect, portrait, image.Point{}, mask, image.Point{}, draw.Over)

	maxTextWidth := int(float64(width) * textWidthPct)
	ink := color.NRGBA{R: 26, G: 32, B: 44, A: 255}

	displayName := r.titler.String(fields.Name)
	if err := r.drawCentered(canvas, displayName, r.bold, float64(height)*nameFontPct, maxTextWidth, int(float64(height)*nameBaselinePct), ink); err != nil {
		return nil, err
	}
	if fields.Organization != "" {
		if err := r.drawCentered(canvas, fields.Organization, r.regular, float64(height)*smallFontPct, maxTextWidth, int(float64(height)*orgBaselinePct), ink); err != nil {
			return nil, err
		}
	}
	if err := r.drawCentered(canvas, joinEvents(fields.Events), r.regular, float64(height)*smallFontPct, maxTextWidth, int(float64(height)*eventBaselinePct), ink); err != nil {
		return nil, err
	}
	if err := r.drawCentered(canvas, formatID(fields.RegistrationID), r.bold, float64(height)*smallFontPct, maxTextWidth, int(float64(height)*idBaselinePct), ink); err != nil {
		return nil, err
	}

	if err := r.drawQR(canvas, fields, width, height); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	return &Credential{PNG: buf.Bytes(), Width: width, Height: height}, nil
}

// drawCentered renders text centered at the given baseline, shrinking the
// font in whole-point steps until the line fits or the floor is reached. Text
// is never silently truncated without shrinking first.
func (r *Renderer) drawCentered(dst *image.NRGBA, text string, fnt *opentype.Font, baseSize float64, maxWidth, baselineY int, ink color.NRGBA) error {
	if text == "" {
		return nil
	}
	size, advance, err := fitTextSize(fnt, text, baseSize, maxWidth)
	if err != nil {
		return err
	}
	face, err := newFace(fnt, size)
	if err != nil {
		return err
	}
	defer face.Close()

	x := (dst.Bounds().Dx() - advance.Ceil()) / 2
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot:  fixed.P(x, baselineY),
	}
	drawer.DrawString(text)
	return nil
}

// fitTextSize finds the largest size <= baseSize at which text fits maxWidth,
// bounded below by minFontScale of the base size.
func fitTextSize(fnt *opentype.Font, text string, baseSize float64, maxWidth int) (float64, fixed.Int26_6, error) {
	floor := baseSize * minFontScale
	size := baseSize
	for {
		face, err := newFace(fnt, size)
		if err != nil {
			return 0, 0, err
		}
		advance := font.MeasureString(face, text)
		face.Close()
		if advance.Ceil() <= maxWidth || size-1 < floor {
			return size, advance, nil
		}
		size--
	}
}

func newFace(fnt *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build font face: %w", err)
	}
	return face, nil
}

// drawQR embeds a scannable verification payload in the bottom-right corner.
func (r *Renderer) drawQR(dst *image.NRGBA, fields Fields, width, height int) error {
	payload, err := json.Marshal(map[string]any{
		"id":     fields.RegistrationID,
		"name":   fields.Name,
		"events": fields.Events,
	})
	if err != nil {
		return fmt.Errorf("encode qr payload: %w", err)
	}
	qr, err := qrcode.New(string(payload), qrcode.Medium)
	if err != nil {
		return fmt.Errorf("build qr code: %w", err)
	}
	qr.DisableBorder = true

	size := int(float64(width) * qrSizePct)
	margin := int(float64(width) * qrMarginPct)
	qrImg := qr.Image(size)
	rect := image.Rect(0, 0, size, size).
		Add(image.Pt(width-size-margin, height-size-margin))
	draw.Draw(dst, rect, qrImg, image.Point{}, draw.Over)
	return nil
}

// roundedMask builds an alpha mask for a size x size square with softly
// rounded corners of the given radius.
func roundedMask(size, radius int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, size, size))
	if radius < 0 {
		radius = 0
	}
	centers := [4]image.Point{
		{radius, radius},
		{size - 1 - radius, radius},
		{radius, size - 1 - radius},
		{size - 1 - radius, size - 1 - radius},
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			alpha := uint8(255)
			inCornerBand := (x < radius || x > size-1-radius) && (y < radius || y > size-1-radius)
			if inCornerBand {
				var c image.Point
				switch {
				case x < radius && y < radius:
					c = centers[0]
				case x > size-1-radius && y < radius:
					c = centers[1]
				case x < radius:
					c = centers[2]
				default:
					c = centers[3]
				}
				dx, dy := float64(x-c.X), float64(y-c.Y)
				d := dx*dx + dy*dy
				rOut := float64(radius) + 0.5
				rIn := float64(radius) - 0.5
				switch {
				case d >= rOut*rOut:
					alpha = 0
				case d > rIn*rIn:
					// Soft one-pixel edge.
					alpha = 128
				}
			}
			mask.SetAlpha(x, y, color.Alpha{A: alpha})
		}
	}
	return mask
}

func joinEvents(events []string) string {
	out := ""
	for i, e := range events {
		if i > 0 {
			out += ", "
		}
		out += e
	}
	return out
}

func formatID(id string) string {
	if id == "" {
		return ""
	}
	return "ID: " + id
}
