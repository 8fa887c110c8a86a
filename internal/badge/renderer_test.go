package badge

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"

	"festcred/internal/domain"
)

func testTemplate(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 245, G: 245, B: 240, A: 255})
		}
	}
	return img
}

func testPhoto(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test photo: %v", err)
	}
	return buf.Bytes()
}

func testFields() Fields {
	return Fields{
		RegistrationID: "FEST-2026-000042",
		Name:           "ada lovelace",
		Organization:   "Analytical Engines Ltd",
		Events:         []string{"Quiz", "Cricket"},
	}
}

func TestNewRendererMissingTemplate(t *testing.T) {
	_, err := NewRenderer(filepath.Join(t.TempDir(), "missing.png"))
	if !domain.IsFatalAsset(err) {
		t.Fatalf("err = %v, want FatalAssetError", err)
	}
}

func TestNewRendererFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, testTemplate(600, 960)); err != nil {
		t.Fatalf("encode template: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	r, err := NewRenderer(path)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	w, h := r.Size()
	if w != 600 || h != 960 {
		t.Fatalf("size = %dx%d, want 600x960", w, h)
	}
}

func TestComposeDimensionsFollowTemplate(t *testing.T) {
	for _, dims := range [][2]int{{600, 960}, {750, 1200}} {
		r, err := NewRendererFromImage(testTemplate(dims[0], dims[1]))
		if err != nil {
			t.Fatalf("NewRendererFromImage: %v", err)
		}
		cred, err := r.Compose(testFields(), testPhoto(t, 400, 300))
		if err != nil {
			t.Fatalf("Compose: %v", err)
		}
		if cred.Width != dims[0] || cred.Height != dims[1] {
			t.Fatalf("credential = %dx%d, want %dx%d", cred.Width, cred.Height, dims[0], dims[1])
		}
		decoded, err := png.Decode(bytes.NewReader(cred.PNG))
		if err != nil {
			t.Fatalf("output is not valid png: %v", err)
		}
		if decoded.Bounds().Dx() != dims[0] {
			t.Fatalf("decoded width = %d", decoded.Bounds().Dx())
		}
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	r, err := NewRendererFromImage(testTemplate(600, 960))
	if err != nil {
		t.Fatalf("NewRendererFromImage: %v", err)
	}
	photo := testPhoto(t, 512, 384)

	first, err := r.Compose(testFields(), photo)
	if err != nil {
		t.Fatalf("first Compose: %v", err)
	}
	second, err := r.Compose(testFields(), photo)
	if err != nil {
		t.Fatalf("second Compose: %v", err)
	}
	if !bytes.Equal(first.PNG, second.PNG) {
		t.Fatal("composing identical inputs twice produced different bytes")
	}
}

func TestComposeWithoutPhotoUsesPlaceholder(t *testing.T) {
	r, err := NewRendererFromImage(testTemplate(600, 960))
	if err != nil {
		t.Fatalf("NewRendererFromImage: %v", err)
	}
	cred, err := r.Compose(testFields(), nil)
	if err != nil {
		t.Fatalf("Compose without photo: %v", err)
	}
	if len(cred.PNG) == 0 {
		t.Fatal("empty credential")
	}

	// The placeholder carries the initials gradient, so the photo region must
	// differ from the bare template.
	withPhoto, err := r.Compose(testFields(), testPhoto(t, 100, 100))
	if err != nil {
		t.Fatalf("Compose with photo: %v", err)
	}
	if bytes.Equal(cred.PNG, withPhoto.PNG) {
		t.Fatal("placeholder output equals photo output")
	}
}

func TestComposeCorruptPhotoDegradesNotFails(t *testing.T) {
	r, err := NewRendererFromImage(testTemplate(600, 960))
	if err != nil {
		t.Fatalf("NewRendererFromImage: %v", err)
	}
	if _, err := r.Compose(testFields(), []byte("not an image")); err != nil {
		t.Fatalf("corrupt photo should degrade to placeholder, got %v", err)
	}
}

func TestFitTextSizeShrinksLongText(t *testing.T) {
	fnt, err := opentype.Parse(gobold.TTF)
	if err != nil {
		t.Fatalf("parse font: %v", err)
	}

	short, _, err := fitTextSize(fnt, "Ada", 48, 500)
	if err != nil {
		t.Fatalf("fitTextSize short: %v", err)
	}
	if short != 48 {
		t.Fatalf("short text size = %v, want base 48", short)
	}

	long, advance, err := fitTextSize(fnt, "A Name So Long It Cannot Possibly Fit The Card", 48, 500)
	if err != nil {
		t.Fatalf("fitTextSize long: %v", err)
	}
	if long >= 48 {
		t.Fatalf("long text size = %v, want shrink below base", long)
	}
	if long >= 48*minFontScale && advance.Ceil() > 500 {
		t.Fatalf("text still overflows at %v before reaching the floor", long)
	}
	if long < 48*minFontScale {
		t.Fatalf("size %v went below the floor", long)
	}
}

func TestPlaceholderDegenerateSizes(t *testing.T) {
	r, err := NewRendererFromImage(testTemplate(600, 960))
	if err != nil {
		t.Fatalf("NewRendererFromImage: %v", err)
	}

	// A one-pixel region has no gradient span; it must still get a defined
	// color, not the result of a zero division.
	img := r.placeholder("", 1)
	if got := img.NRGBAAt(0, 0); got != gradientTop {
		t.Fatalf("single pixel = %v, want %v", got, gradientTop)
	}

	img = r.placeholder("", 2)
	if got := img.NRGBAAt(0, 0); got != gradientTop {
		t.Fatalf("top pixel = %v, want %v", got, gradientTop)
	}
	if got := img.NRGBAAt(0, 1); got != gradientBottom {
		t.Fatalf("bottom pixel = %v, want %v", got, gradientBottom)
	}
}

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"ada lovelace", "AL"},
		{"Plato", "P"},
		{"  maria   de la cruz ", "MD"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := initials(tt.name); got != tt.want {
			t.Fatalf("initials(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
