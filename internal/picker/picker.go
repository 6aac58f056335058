// Package picker acquires images for classification: from the filesystem,
// from an HTTP upload, and through the crop/re-encode edit step.
package picker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/example/snapclassify/internal/classifier"
)

var (
	// ErrPermissionDenied is returned when access to the media source was refused.
	ErrPermissionDenied = errors.New("media library permission denied")
	// ErrPicker wraps every other selection failure.
	ErrPicker = errors.New("image selection failed")
	// ErrUnsupportedMedia is returned for payloads that are not JPEG or PNG.
	ErrUnsupportedMedia = fmt.Errorf("%w: unsupported media type", ErrPicker)
)

// AspectRatio is a width:height pair.
type AspectRatio struct {
	Width  int
	Height int
}

// Options mirrors the settings of a gallery picker.
type Options struct {
	AllowEditing   bool
	AspectRatio    AspectRatio
	Quality        float64
	ReturnRawBytes bool
}

// DefaultOptions crops to 4:3 at full quality and returns raw bytes.
func DefaultOptions() Options {
	return Options{
		AllowEditing:   true,
		AspectRatio:    AspectRatio{Width: 4, Height: 3},
		Quality:        1,
		ReturnRawBytes: true,
	}
}

// Result is the outcome of one pick.
type Result struct {
	Cancelled   bool
	Image       string
	ContentType string
	RawBytes    []byte
}

// Picker selects one image.
type Picker interface {
	Pick(ctx context.Context, opts Options) (Result, error)
}

// FilePicker selects an image from a path. An empty path means the user
// dismissed the dialog.
type FilePicker struct {
	Path string
}

// Pick reads the file after verifying it still resolves to a regular file.
func (p FilePicker) Pick(ctx context.Context, opts Options) (Result, error) {
	if p.Path == "" {
		return Result{Cancelled: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	abs, err := filepath.Abs(p.Path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPicker, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return Result{}, fmt.Errorf("%w: %s", ErrPermissionDenied, abs)
		}
		return Result{}, fmt.Errorf("%w: file %s does not exist", ErrPicker, abs)
	}
	if !info.Mode().IsRegular() {
		return Result{}, fmt.Errorf("%w: %s is not a regular file", ErrPicker, abs)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return Result{}, fmt.Errorf("%w: %s", ErrPermissionDenied, abs)
		}
		return Result{}, fmt.Errorf("%w: %w", ErrPicker, err)
	}
	return finish(abs, data, opts)
}

// UploadPicker selects an image that was uploaded by a client. Denied carries
// the reason access was refused, if it was.
type UploadPicker struct {
	Filename string
	Data     []byte
	Denied   error
}

// Pick validates and edits the uploaded payload.
func (p UploadPicker) Pick(ctx context.Context, opts Options) (Result, error) {
	if p.Denied != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPermissionDenied, p.Denied)
	}
	if len(p.Data) == 0 {
		return Result{Cancelled: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	ref := fmt.Sprintf("upload://%s/%s", uuid.NewString(), filepath.Base(p.Filename))
	return finish(ref, p.Data, opts)
}

func finish(ref string, data []byte, opts Options) (Result, error) {
	contentType := DetectContentType(data)
	if !Supported(contentType) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, contentType)
	}
	if err := classifier.CheckImageSize(data); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPicker, err)
	}

	edited, contentType, err := Edit(data, contentType, opts)
	if err != nil {
		return Result{}, err
	}

	res := Result{Image: ref, ContentType: contentType}
	if opts.ReturnRawBytes {
		res.RawBytes = edited
	}
	return res, nil
}

// DetectContentType sniffs the media type of data.
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}

// Supported reports whether contentType can be classified.
func Supported(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png":
		return true
	}
	return false
}
