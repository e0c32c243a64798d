// Package imaging decodes request images and provides the resampling helpers
// shared by detection, alignment and embedding.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrEmptyImage means no image payload was supplied at all.
	ErrEmptyImage = errors.New("empty image")
	// ErrInvalidBase64 means the payload is not valid base64.
	ErrInvalidBase64 = errors.New("invalid base64 image")
	// ErrUndecodable means the bytes are not a supported image container.
	ErrUndecodable = errors.New("undecodable image")
)

// DecodeBase64 decodes a base64 encoded image container. A data URL prefix
// ("data:image/png;base64,") is accepted and stripped.
func DecodeBase64(payload string) (image.Image, error) {
	data, err := DecodeBase64Bytes(payload)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// DecodeBase64Bytes returns the raw container bytes of a base64 payload.
func DecodeBase64Bytes(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if i := strings.Index(payload, ","); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+1:]
	}
	if payload == "" {
		return nil, ErrEmptyImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Browsers and some clients drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBase64, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

// Decode decodes JPEG, PNG, GIF, BMP or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrUndecodable)
	}
	return img, nil
}
