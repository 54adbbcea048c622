package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikkim/tabline-backend/internal/app/repository"
)

func TestReviewService_Submit(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	link := f.openLink(t, f.member.ID, "T-1", 2500)
	_, err := newSettlement(f).CloseTab(context.Background(), "SMIT0001", 0, "")
	require.NoError(t, err)
	open := f.openLink(t, f.member.ID, "T-2", 100)

	svc := NewReviewService(repository.NewReviewRepository(f.db), f.memberRepo, f.linkRepo)

	_, err = svc.Submit("SMIT0001", link.ID, 6, "")
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = svc.Submit("SMIT0001", open.ID, 4, "")
	assert.ErrorIs(t, err, ErrTabNotClosed)

	other := f.addMember(t, "JONE0001", "Jones")
	_, err = svc.Submit(other.Number, link.ID, 4, "")
	assert.ErrorIs(t, err, ErrLinkNotFound)

	review, err := svc.Submit("SMIT0001", link.ID, 5, "  great fries ")
	require.NoError(t, err)
	assert.Equal(t, "great fries", review.Comment)
	assert.Equal(t, f.restaurant.ID, review.RestaurantID)

	_, err = svc.Submit("SMIT0001", link.ID, 3, "")
	assert.ErrorIs(t, err, ErrReviewAlreadyExists)
}

func TestReviewService_Analytics(t *testing.T) {
	f := setupServiceTest(t)
	svc := NewReviewService(repository.NewReviewRepository(f.db), f.memberRepo, f.linkRepo)

	empty, err := svc.Analytics(f.restaurant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Count)
	assert.Empty(t, empty.Recent)

	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	link := f.openLink(t, f.member.ID, "T-1", 2500)
	_, err = newSettlement(f).CloseTab(context.Background(), "SMIT0001", 0, "")
	require.NoError(t, err)
	_, err = svc.Submit("SMIT0001", link.ID, 4, "")
	require.NoError(t, err)

	stats, err := svc.Analytics(f.restaurant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Count)
	assert.InDelta(t, 4.0, stats.Average, 0.001)
	assert.Equal(t, int64(1), stats.Distribution[4])
	assert.Len(t, stats.Recent, 1)
}
