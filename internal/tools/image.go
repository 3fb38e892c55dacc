package tools

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// fitJPEG shrinks a JPEG so neither side exceeds maxDim. Images already
// within bounds, or maxDim <= 0, are returned untouched.
func fitJPEG(data []byte, maxDim, quality int) ([]byte, error) {
	if maxDim <= 0 {
		return data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return data, nil
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
