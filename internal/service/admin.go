package service

import (
	"context"

	apperrors "github.com/marketloom/search-service/pkg/errors"

	"github.com/marketloom/search-service/internal/domain"
	"github.com/marketloom/search-service/internal/index"
	"github.com/marketloom/search-service/internal/ratelimit"
)

// Index management shares one budget, separate from search traffic, so a
// runaway import job cannot starve queries of their rate allowance.

func (s *Service) allowAdmin(ctx context.Context, id domain.Identity) error {
	if d := s.limiter.Allow(ctx, ratelimit.ClassAdmin, id.Key); !d.Allowed {
		return apperrors.RateLimited(d.RetryAfter)
	}
	return nil
}

// IndexProduct upserts a single catalog record.
func (s *Service) IndexProduct(ctx context.Context, rec *index.ProductRecord, id domain.Identity) error {
	if err := s.allowAdmin(ctx, id); err != nil {
		return err
	}
	return s.index.IndexOne(ctx, rec)
}

// BulkIndexProducts upserts a batch of catalog records. Item failures are
// reported in the result, not as an error.
func (s *Service) BulkIndexProducts(ctx context.Context, recs []*index.ProductRecord, id domain.Identity) (*index.BulkResult, error) {
	if err := s.allowAdmin(ctx, id); err != nil {
		return nil, err
	}
	return s.index.BulkIndex(ctx, recs)
}

// RemoveProduct deletes one document from the index.
func (s *Service) RemoveProduct(ctx context.Context, docID string, id domain.Identity) error {
	if err := s.allowAdmin(ctx, id); err != nil {
		return err
	}
	return s.index.Remove(ctx, docID)
}

// FullReindex rebuilds the index from the catalog under the admin budget.
func (s *Service) FullReindex(ctx context.Context, id domain.Identity) (*index.BulkResult, error) {
	if err := s.allowAdmin(ctx, id); err != nil {
		return nil, err
	}
	return s.Reindex(ctx)
}
