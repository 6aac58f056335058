package classifier

import (
	"bytes"
	"errors"
	"fmt"
	"image"
)

// MaxImagePixels bounds the decoded size of an image handed to a backend.
const MaxImagePixels = 40_000_000

// ErrImageTooLarge is returned for images whose header declares more than
// MaxImagePixels pixels.
var ErrImageTooLarge = errors.New("image dimensions exceed limit")

// CheckImageSize reads only the image header and rejects images that would
// decode to more than MaxImagePixels. Decoders must be registered by the caller.
func CheckImageSize(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}
