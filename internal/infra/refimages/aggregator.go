package refimages

import (
	"context"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/logger"
)

const (
	maxImages    = 3
	enoughImages = 2
)

// Aggregator merges the primary and secondary catalogs into at most three
// unique images. It implements detection.ReferenceFinder.
type Aggregator struct {
	Primary   Catalog
	Secondary Catalog
	Log       logger.Logger
}

func NewAggregator(primary, secondary Catalog, log logger.Logger) *Aggregator {
	return &Aggregator{Primary: primary, Secondary: secondary, Log: logOrNop(log)}
}

// Find never fails. Each term is tried against the primary catalog until one
// yields an image; the secondary catalog tops up by scientific name.
func (a *Aggregator) Find(ctx context.Context, q detection.ReferenceQuery) []detection.ReferenceImage {
	log := logOrNop(a.Log)
	out := make([]detection.ReferenceImage, 0, maxImages)
	seen := make(map[string]struct{})
	merge := func(imgs []detection.ReferenceImage) {
		for _, img := range imgs {
			if len(out) >= maxImages {
				return
			}
			if _, dup := seen[img.URL]; dup || img.URL == "" {
				continue
			}
			seen[img.URL] = struct{}{}
			out = append(out, img)
		}
	}

	if a.Primary != nil {
		for _, term := range q.Terms() {
			if len(out) >= enoughImages {
				break
			}
			imgs, err := a.Primary.Search(ctx, term)
			if err != nil {
				log.Warn("reference catalog search failed",
					logger.String("catalog", a.Primary.Name()),
					logger.String("term", term),
					logger.Error(err))
				continue
			}
			merge(imgs)
			if len(imgs) > 0 {
				break
			}
		}
	}

	if a.Secondary != nil && len(out) < enoughImages && q.ScientificName != "" {
		imgs, err := a.Secondary.Search(ctx, q.ScientificName)
		if err != nil {
			log.Warn("reference catalog search failed",
				logger.String("catalog", a.Secondary.Name()),
				logger.String("term", q.ScientificName),
				logger.Error(err))
		} else {
			merge(imgs)
		}
	}

	log.Debug("reference images aggregated", logger.Int("count", len(out)))
	return out
}
