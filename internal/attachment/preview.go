package attachment

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PreviewMaxSide bounds the longer side of a generated preview.
const PreviewMaxSide = 320

// Preview is the local thumbnail of a file about to be uploaded.
type Preview struct {
	Path     string
	MimeType string
	Width    int
	Height   int
}

// MakePreview sniffs src and, for images, writes a scaled PNG thumbnail to
// dst. Non-image files yield a Preview with only MimeType set.
func MakePreview(src, dst string) (Preview, error) {
	mtype, err := mimetype.DetectFile(src)
	if err != nil {
		return Preview{}, fmt.Errorf("detect type: %w", err)
	}
	p := Preview{MimeType: mtype.String()}
	if !strings.HasPrefix(p.MimeType, "image/") {
		return p, nil
	}

	f, err := os.Open(src)
	if err != nil {
		return p, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		// Unsupported image formats upload without a preview.
		return p, nil
	}

	rect := fitRect(img.Bounds(), PreviewMaxSide)
	thumb := scale(img, rect, draw.ApproxBiLinear)

	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return p, fmt.Errorf("create preview dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return p, fmt.Errorf("create preview: %w", err)
	}
	if err := png.Encode(out, thumb); err != nil {
		_ = out.Close()
		return p, fmt.Errorf("encode preview: %w", err)
	}
	if err := out.Close(); err != nil {
		return p, fmt.Errorf("close preview: %w", err)
	}
	p.Path, p.Width, p.Height = dst, rect.Dx(), rect.Dy()
	return p, nil
}

func fitRect(b image.Rectangle, side int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w <= side && h <= side {
		return image.Rect(0, 0, w, h)
	}
	if w >= h {
		return image.Rect(0, 0, side, max(1, h*side/w))
	}
	return image.Rect(0, 0, max(1, w*side/h), side)
}

func scale(src image.Image, rect image.Rectangle, scaler draw.Scaler) image.Image {
	dst := image.NewRGBA(rect)
	scaler.Scale(dst, rect, src, src.Bounds(), draw.Over, nil)
	return dst
}
