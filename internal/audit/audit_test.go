package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewEntryUsesRequestMeta(t *testing.T) {
	actor := uuid.New()
	ctx := WithRequestMeta(context.Background(), "10.0.0.7", "curl/8")

	e := NewEntry(ctx, &actor, "MODERATOR", ActionIssueVerify, EntityIssue, "issue-1")

	assert.Equal(t, "10.0.0.7", e.IPAddress)
	assert.Equal(t, "curl/8", e.UserAgent)
	assert.Equal(t, &actor, e.UserID)
	assert.Equal(t, ActionIssueVerify, e.Action)
}

func TestWithDetailDoesNotMutateOriginal(t *testing.T) {
	base := NewEntry(context.Background(), nil, "", ActionUserLogin, EntityUser, "u")
	withReason := base.WithDetail("reason", "x")

	assert.Nil(t, base.Details)
	assert.Equal(t, "x", withReason.Details["reason"])
	assert.Empty(t, base.IPAddress)
}
