// Package imgnorm shrinks arbitrary raster images under a byte budget.
//
// It decodes any registered format (JPEG, PNG, GIF natively, plus WebP,
// BMP, and TIFF through golang.org/x/image) and re-encodes to WebP, the
// single canonical output encoding. The search is a bounded loop over
// {quality, dimension}: lower the quality step by step, and once the
// quality floor is reached, shrink the bounding dimension and reset the
// quality to a mid value. The call always returns an image; when the
// attempt cap runs out the smallest encoding seen so far is returned and
// flagged, so the byte budget is a best-effort guarantee only.
package imgnorm

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/itaober/memogit/internal/models"
)

const (
	startQuality   = 80
	midQuality     = 60
	floorQuality   = 40
	qualityStep    = 10
	dimensionRatio = 0.8
	maxAttempts    = 12
	minDimension   = 64
)

// Options bound the normalization output.
type Options struct {
	// BudgetBytes is the target output size. 0 disables the budget: the
	// image is encoded once at the starting quality.
	BudgetBytes int64

	// MaxDimension bounds the longest output edge. The image is only ever
	// scaled down; a smaller input keeps its dimensions.
	MaxDimension int
}

// Result is a normalized image.
type Result struct {
	Data   []byte
	Width  int
	Height int

	// BestEffort is true when the budget could not be met within the
	// attempt cap; Data then holds the smallest encoding produced.
	BestEffort bool

	// Attempts counts encode passes performed.
	Attempts int
}

// Normalize decodes raw and re-encodes it as WebP under opts.BudgetBytes.
// An undecodable input is a classified validation error; everything else
// always yields a result.
func Normalize(raw []byte, opts Options) (*Result, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, models.Validation(fmt.Sprintf("cannot decode image: %v", err))
	}

	bounds := src.Bounds()
	maxDim := opts.MaxDimension
	if maxDim <= 0 {
		maxDim = 1920
	}
	// Downscale only: never enlarge past the source dimensions.
	if longest := max(bounds.Dx(), bounds.Dy()); longest < maxDim {
		maxDim = longest
	}

	quality := startQuality
	var best *Result

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resized := imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)

		var buf bytes.Buffer
		if err := webp.Encode(&buf, resized, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}

		r := &Result{
			Data:     buf.Bytes(),
			Width:    resized.Bounds().Dx(),
			Height:   resized.Bounds().Dy(),
			Attempts: attempt,
		}
		if best == nil || len(r.Data) < len(best.Data) {
			best = r
		}
		if opts.BudgetBytes <= 0 || int64(len(r.Data)) <= opts.BudgetBytes {
			return r, nil
		}

		if quality > floorQuality {
			quality -= qualityStep
		} else if maxDim > minDimension {
			maxDim = int(float64(maxDim) * dimensionRatio)
			quality = midQuality
		} else {
			// Nothing left to shrink.
			break
		}
	}

	best.BestEffort = true
	return best, nil
}
