package moderation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/issue/issuetest"
	"github.com/citywatch/api/internal/repo"
	"github.com/citywatch/api/internal/service"
)

func seed(store *issuetest.MemStore, city uuid.UUID, statuses ...issue.Status) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(statuses))
	for _, s := range statuses {
		id := uuid.New()
		store.Put(issue.Issue{ID: id, CityID: city, Status: s, Severity: issue.SeverityMedium})
		ids = append(ids, id)
	}
	return ids
}

func TestQueueScopedToAssignedCity(t *testing.T) {
	store := issuetest.NewMemStore()
	nagpur, pune := uuid.New(), uuid.New()
	local := seed(store, nagpur, issue.StatusReported, issue.StatusReported, issue.StatusVerified)
	seed(store, pune, issue.StatusReported)

	svc := NewService(store)
	moderator := service.Principal{UserID: uuid.New(), Role: repo.RoleModerator, AssignedCityID: &nagpur}

	items, err := svc.Queue(context.Background(), moderator, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, local[0], items[0].ID, "oldest first")
	assert.Equal(t, local[1], items[1].ID)

	admin := service.Principal{UserID: uuid.New(), Role: repo.RoleSuperAdmin}
	items, err = svc.Queue(context.Background(), admin, nil)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, err = svc.Queue(context.Background(), admin, []issue.Status{issue.StatusVerified})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestQueueRefusesUnassignedModerator(t *testing.T) {
	svc := NewService(issuetest.NewMemStore())

	_, err := svc.Queue(context.Background(), service.Principal{UserID: uuid.New(), Role: repo.RoleModerator}, nil)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.QueueStats(context.Background(), service.Principal{UserID: uuid.New(), Role: repo.RoleCitizen})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestQueueStats(t *testing.T) {
	store := issuetest.NewMemStore()
	nagpur := uuid.New()
	seed(store, nagpur, issue.StatusReported, issue.StatusReported, issue.StatusUnderReview, issue.StatusVerified, issue.StatusClosed)
	seed(store, uuid.New(), issue.StatusReported)

	svc := NewService(store)
	stats, err := svc.QueueStats(context.Background(), service.Principal{UserID: uuid.New(), Role: repo.RoleCityAdmin, AssignedCityID: &nagpur})
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 2, UnderReview: 1, Verified: 1, Total: 5}, stats)
}
