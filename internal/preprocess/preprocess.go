// Package preprocess normalizes receipt images ahead of extraction. A
// failure on a single image degrades only that image to best effort; the
// Document itself never fails here.
package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
	"receiptflow/internal/storage"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

type Preprocessor struct {
	store  storage.ObjectStore
	level  Level
	maxDim int
	logger *zap.Logger
}

func New(store storage.ObjectStore, level Level, maxDim int, logger *zap.Logger) *Preprocessor {
	return &Preprocessor{store: store, level: level, maxDim: maxDim, logger: logger}
}

// Prepare enhances every image of the document and stores the result next
// to the raw object. Images that cannot be enhanced keep their raw
// reference and are marked best effort.
func (p *Preprocessor) Prepare(ctx context.Context, doc models.Document) (models.Document, error) {
	degraded := false

	for i := range doc.Images {
		ref := &doc.Images[i]

		data, err := p.store.Get(ctx, ref.Raw)
		if err != nil {
			return doc, fault.New(fault.KindStorage, "preprocess", err)
		}

		enhanced, err := Enhance(data, p.level, p.maxDim)
		if err != nil {
			p.logger.Warn("image enhancement failed, degrading to best effort",
				zap.String("document_id", doc.ID.String()),
				zap.String("ref", ref.Raw),
				zap.Error(err),
			)
			ref.BestEffort = true
			degraded = true
			continue
		}

		key := enhancedKey(ref.Raw)
		stored, err := p.store.Put(ctx, key, enhanced, "image/jpeg")
		if err != nil {
			return doc, fault.New(fault.KindStorage, "preprocess", err)
		}
		ref.Enhanced = stored
	}

	if degraded {
		doc.State = models.PreprocessDegraded
	} else {
		doc.State = models.PreprocessDone
	}
	return doc, nil
}

// Stitch composes a multi-image document into one top-to-bottom page for
// strategies that want a single composite. The error is advisory: callers
// fall back to per-image extraction, they do not fail the Document.
func (p *Preprocessor) Stitch(ctx context.Context, doc models.Document) (models.Document, error) {
	if len(doc.Images) < 2 {
		return doc, nil
	}

	pages := make([]image.Image, 0, len(doc.Images))
	maxWidth := 0
	totalHeight := 0

	for _, ref := range doc.Images {
		data, err := p.store.Get(ctx, bestRef(ref))
		if err != nil {
			return doc, fmt.Errorf("failed to load image for stitching: %w", err)
		}
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return doc, fmt.Errorf("failed to decode image for stitching: %w", err)
		}
		pages = append(pages, img)
		if w := img.Bounds().Dx(); w > maxWidth {
			maxWidth = w
		}
	}

	// Normalize widths so segment edges line up, then stack in assembly order.
	for i, img := range pages {
		if img.Bounds().Dx() != maxWidth {
			pages[i] = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
		}
		totalHeight += pages[i].Bounds().Dy()
	}

	canvas := imaging.New(maxWidth, totalHeight, color.White)
	y := 0
	for _, img := range pages {
		canvas = imaging.Paste(canvas, img, image.Pt(0, y))
		y += img.Bounds().Dy()
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 95}); err != nil {
		return doc, fmt.Errorf("failed to encode composite: %w", err)
	}

	key := path.Join("composite", doc.UserID, doc.ID.String()+".jpg")
	stored, err := p.store.Put(ctx, key, buf.Bytes(), "image/jpeg")
	if err != nil {
		return doc, fmt.Errorf("failed to store composite: %w", err)
	}

	doc.Composite = stored
	return doc, nil
}

// bestRef prefers the enhanced object, falling back to raw for best-effort
// images.
func bestRef(ref models.ImageRef) string {
	if ref.Enhanced != "" && !ref.BestEffort {
		return ref.Enhanced
	}
	return ref.Raw
}

func enhancedKey(rawKey string) string {
	dir, file := path.Split(rawKey)
	return path.Join("prep", dir, file)
}
