package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "campreg/internal/errors"
	"campreg/internal/external"
	"campreg/internal/models"
)

func int64ptr(n int64) *int64 { return &n }

func TestResolveItemMatchesByKeyword(t *testing.T) {
	resolver := NewResolver(nil)
	items := []external.Item{
		{ID: 1, Name: external.LocalizedName{"en": "Day Pass"}, Active: true},
		{ID: 2, Name: external.LocalizedName{"en": "Camper Ticket"}, Active: true},
		{ID: 3, Name: external.LocalizedName{"en": "Staff Pass"}, Active: true},
	}

	item, err := resolver.ResolveItem(models.IdentityPrimary, items)
	require.NoError(t, err)
	assert.Equal(t, int64(2), item.ID)

	item, err = resolver.ResolveItem(models.IdentitySecondary, items)
	require.NoError(t, err)
	assert.Equal(t, int64(3), item.ID)
}

func TestResolveItemChecksInternalNameCaseInsensitive(t *testing.T) {
	resolver := NewResolver(nil)
	items := []external.Item{
		{ID: 5, Name: external.LocalizedName{"zh-tw": "夏令營"}, InternalName: "CAMPER-2026", Active: true},
	}

	item, err := resolver.ResolveItem(models.IdentityPrimary, items)
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.ID)
}

func TestResolveItemSkipsInactiveItems(t *testing.T) {
	resolver := NewResolver(nil)
	items := []external.Item{
		{ID: 1, Name: external.LocalizedName{"en": "Camper Ticket"}, Active: false},
	}

	_, err := resolver.ResolveItem(models.IdentityPrimary, items)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeItemNotFound, apperrors.CodeOf(err))
}

func TestResolveItemKeywordOrderWins(t *testing.T) {
	resolver := NewResolver(map[models.IdentityTag][]string{
		models.IdentityPrimary: {"early bird", "camper"},
	})
	items := []external.Item{
		{ID: 1, Name: external.LocalizedName{"en": "Camper Ticket"}, Active: true},
		{ID: 2, Name: external.LocalizedName{"en": "Early Bird Camper"}, Active: true},
	}

	item, err := resolver.ResolveItem(models.IdentityPrimary, items)
	require.NoError(t, err)
	assert.Equal(t, int64(2), item.ID, "earlier keyword takes precedence")
}

func TestAvailabilityNoQuotasIsUnbounded(t *testing.T) {
	resolver := NewResolver(nil)
	item := &external.Item{ID: 1}

	avail := resolver.ComputeAvailability(item, nil)
	assert.True(t, avail.Available)
	assert.Nil(t, avail.Count)
}

func TestAvailabilityIsMinimumAcrossQuotas(t *testing.T) {
	resolver := NewResolver(nil)
	item := &external.Item{ID: 1}
	quotas := []external.Quota{
		{ID: 10, Items: []int64{1}, Available: true, AvailableNumber: int64ptr(10)},
		{ID: 11, Items: []int64{1, 2}, Available: true, AvailableNumber: int64ptr(5)},
		{ID: 12, Items: []int64{2}, Available: true, AvailableNumber: int64ptr(1)}, // other item
	}

	avail := resolver.ComputeAvailability(item, quotas)
	assert.True(t, avail.Available)
	require.NotNil(t, avail.Count)
	assert.Equal(t, int64(5), *avail.Count)
}

func TestAvailabilityFalseWhenNoQuotaOpen(t *testing.T) {
	resolver := NewResolver(nil)
	item := &external.Item{ID: 1}
	quotas := []external.Quota{
		{ID: 10, Items: []int64{1}, Available: false, AvailableNumber: int64ptr(10)},
		{ID: 11, Items: []int64{1}, Available: false, AvailableNumber: int64ptr(5)},
	}

	avail := resolver.ComputeAvailability(item, quotas)
	assert.False(t, avail.Available)
}

func TestAvailabilityZeroCountNormalizedToUnavailable(t *testing.T) {
	resolver := NewResolver(nil)
	item := &external.Item{ID: 1}
	quotas := []external.Quota{
		// Stale flag: available=true but nothing left.
		{ID: 10, Items: []int64{1}, Available: true, AvailableNumber: int64ptr(0)},
	}

	avail := resolver.ComputeAvailability(item, quotas)
	assert.False(t, avail.Available)
}

func TestAvailabilityNegativeCountClampedToZero(t *testing.T) {
	resolver := NewResolver(nil)
	item := &external.Item{ID: 1}
	quotas := []external.Quota{
		{ID: 10, Items: []int64{1}, Available: true, AvailableNumber: int64ptr(-3)},
	}

	avail := resolver.ComputeAvailability(item, quotas)
	assert.False(t, avail.Available)
	require.NotNil(t, avail.Count)
	assert.Equal(t, int64(0), *avail.Count)
}

func TestAvailabilityClosedQuotaDoesNotCount(t *testing.T) {
	resolver := NewResolver(nil)
	item := &external.Item{ID: 1}
	quotas := []external.Quota{
		{ID: 10, Items: []int64{1}, Available: true, Closed: true, AvailableNumber: int64ptr(4)},
		{ID: 11, Items: []int64{1}, Available: true, AvailableNumber: int64ptr(2)},
	}

	avail := resolver.ComputeAvailability(item, quotas)
	assert.True(t, avail.Available)
	require.NotNil(t, avail.Count)
	assert.Equal(t, int64(2), *avail.Count)
}
