package detections

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/domain/pipelineerrors"
	"github.com/bryanwahyu/pestwatch/internal/domain/sanitize"
	"github.com/bryanwahyu/pestwatch/internal/logger"
)

// startEnrichment detaches reference-image lookup from the request. The
// goroutine owns its error boundary and writes to the record at most once.
func (s *Service) startEnrichment(ctx context.Context, id domain.ID, q domain.ReferenceQuery) {
	if s.References == nil || len(q.Terms()) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := s.log().With(logger.String("detection_id", string(id)))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("enrichment panicked", logger.Any("panic", r))
				s.metrics().CountEnrichment("panic")
			}
		}()
		s.enrich(ctx, log, id, q)
	}()
}

func (s *Service) enrich(ctx context.Context, log logger.Logger, id domain.ID, q domain.ReferenceQuery) {
	timeout := s.Options.EnrichmentTimeout
	if timeout <= 0 {
		timeout = DefaultEnrichmentTimeout
	}

	images, err := race(ctx, timeout, func(ctx context.Context) ([]domain.ReferenceImage, error) {
		return s.References.Find(ctx, q), nil
	})
	if err != nil {
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
			err = fmt.Errorf("%w after %s", domain.ErrReferenceImageTimeout, timeout)
		}
		log.Warn("reference images abandoned", logger.Error(err))
		s.recordError(ctx, log, id, pipelineerrors.PhaseEnrich, err)
		s.metrics().CountEnrichment(result)
		return
	}

	clean := sanitize.ReferenceImages(images, s.Options.AllowedImageHosts...)
	if len(clean) == 0 {
		log.Debug("no reference images survived", logger.Int("found", len(images)))
		s.metrics().CountEnrichment("empty")
		return
	}

	if err := s.Repo.PatchReferenceImages(ctx, id, clean); err != nil {
		log.Error("patch reference images failed", logger.Error(err))
		s.recordError(ctx, log, id, pipelineerrors.PhaseEnrich, err)
		s.metrics().CountEnrichment("error")
		return
	}
	log.Info("reference images attached", logger.Int("count", len(clean)))
	s.metrics().CountEnrichment("patched")
}
