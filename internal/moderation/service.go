// Package moderation serves the review queue scoped to a moderator's city.
package moderation

import (
	"context"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/service"
)

const queueLimit = 100

// Source is implemented by issue.Repository.
type Source interface {
	Queue(ctx context.Context, statuses []issue.Status, cityID *uuid.UUID, limit int) ([]issue.Issue, error)
	StatusCounts(ctx context.Context, cityID *uuid.UUID) (map[issue.Status]int, error)
}

type Stats struct {
	Pending     int `json:"pending"`
	UnderReview int `json:"underReview"`
	Verified    int `json:"verified"`
	Total       int `json:"total"`
}

type Service struct {
	source Source
}

func NewService(source Source) *Service {
	return &Service{source: source}
}

// Queue lists issues in the given statuses (REPORTED by default), oldest first.
func (s *Service) Queue(ctx context.Context, p service.Principal, statuses []issue.Status) ([]issue.Issue, error) {
	scope, err := service.ModerationScope(p)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		statuses = []issue.Status{issue.StatusReported}
	}
	return s.source.Queue(ctx, statuses, scope, queueLimit)
}

func (s *Service) QueueStats(ctx context.Context, p service.Principal) (Stats, error) {
	scope, err := service.ModerationScope(p)
	if err != nil {
		return Stats{}, err
	}
	counts, err := s.source.StatusCounts(ctx, scope)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Pending:     counts[issue.StatusReported],
		UnderReview: counts[issue.StatusUnderReview],
		Verified:    counts[issue.StatusVerified],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}
