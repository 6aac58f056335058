package picker

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
)

// Edit applies the picker edit step: a centred crop to opts.AspectRatio and
// a re-encode in the source format. Images already matching the ratio are
// returned untouched when quality is maximal.
func Edit(data []byte, contentType string, opts Options) ([]byte, string, error) {
	quality := jpegQuality(opts.Quality)
	if !opts.AllowEditing && quality == 100 {
		return data, contentType, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %w", ErrPicker, err)
	}

	cropped := img
	if opts.AllowEditing {
		cropped = cropToAspect(img, opts.AspectRatio)
	}
	if cropped.Bounds() == img.Bounds() && quality == 100 {
		return data, contentType, nil
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, cropped)
		contentType = "image/png"
	default:
		err = jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: quality})
		contentType = "image/jpeg"
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: encode image: %w", ErrPicker, err)
	}
	return buf.Bytes(), contentType, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func cropToAspect(img image.Image, ratio AspectRatio) image.Image {
	if ratio.Width <= 0 || ratio.Height <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	targetW, targetH := w, h
	if w*ratio.Height > h*ratio.Width {
		targetW = h * ratio.Width / ratio.Height
	} else {
		targetH = w * ratio.Height / ratio.Width
	}
	if targetW == w && targetH == h {
		return img
	}

	x0 := b.Min.X + (w-targetW)/2
	y0 := b.Min.Y + (h-targetH)/2
	rect := image.Rect(x0, y0, x0+targetW, y0+targetH)

	if s, ok := img.(subImager); ok {
		return s.SubImage(rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			dst.Set(x, y, img.At(x0+x, y0+y))
		}
	}
	return dst
}

// jpegQuality maps a 0..1 picker quality onto the JPEG 1..100 scale.
func jpegQuality(q float64) int {
	if q <= 0 || q >= 1 || math.IsNaN(q) {
		return 100
	}
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	return v
}
