// Package payload builds the synthetic images uploaded by the write phase.
package payload

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math/rand"
)

// DefaultSize is the edge length used when none is configured.
const DefaultSize = 100

// MaxSize bounds the edge length so a typo cannot allocate gigabytes.
const MaxSize = 4096

// JPEG returns a size x size JPEG filled with red-channel noise. rng may be
// nil, in which case a time-seeded source is used.
func JPEG(size int, rng *rand.Rand) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		return nil, fmt.Errorf("image size %d exceeds maximum %d", size, MaxSize)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
