package inventory

import (
	"strings"

	apperrors "campreg/internal/errors"
	"campreg/internal/external"
	"campreg/internal/models"
)

// defaultKeywords maps each identity tag to an ordered list of
// case-insensitive substrings matched against item names. Overridable via
// config so a renamed catalog does not need a redeploy of this table.
var defaultKeywords = map[models.IdentityTag][]string{
	models.IdentityPrimary:   {"camper", "participant", "attendee"},
	models.IdentitySecondary: {"counselor", "staff", "volunteer"},
}

// Availability is the computed live availability of a resolved item.
// A nil Count means unbounded.
type Availability struct {
	Available bool
	Count     *int64
}

// Resolver maps a registration intent's identity tag to exactly one
// purchasable item and computes that item's quota-gated availability.
type Resolver struct {
	keywords map[models.IdentityTag][]string
}

func NewResolver(overrides map[models.IdentityTag][]string) *Resolver {
	keywords := make(map[models.IdentityTag][]string, len(defaultKeywords))
	for tag, words := range defaultKeywords {
		keywords[tag] = words
	}
	for tag, words := range overrides {
		if len(words) > 0 {
			keywords[tag] = words
		}
	}
	return &Resolver{keywords: keywords}
}

// ResolveItem returns the first active item whose localized or internal name
// contains a keyword for the tag. Keywords are tried in order, so an earlier
// keyword wins over a later one even if both match some item.
func (r *Resolver) ResolveItem(tag models.IdentityTag, items []external.Item) (*external.Item, error) {
	words, ok := r.keywords[tag]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeItemNotFound, "no keyword mapping for identity %q", tag)
	}

	for _, word := range words {
		word = strings.ToLower(word)
		for i := range items {
			item := &items[i]
			if !item.Active {
				continue
			}
			name := strings.ToLower(item.Name.String())
			internal := strings.ToLower(item.InternalName)
			if strings.Contains(name, word) || strings.Contains(internal, word) {
				return item, nil
			}
		}
	}

	return nil, apperrors.Newf(apperrors.CodeItemNotFound, "no active item matches identity %q", tag)
}

// ComputeAvailability evaluates the quotas referencing item. An item with no
// quotas is unconditionally available with unbounded count. Otherwise it is
// available iff at least one referencing quota reports available, and the
// count is the minimum across all referencing quotas. A minimum of zero is
// normalized to unavailable even if a flag said otherwise: quota flags can be
// stale relative to their counts.
func (r *Resolver) ComputeAvailability(item *external.Item, quotas []external.Quota) Availability {
	var (
		referenced bool
		anyOpen    bool
		minCount   *int64
	)

	for i := range quotas {
		quota := &quotas[i]
		if !references(quota, item.ID) {
			continue
		}
		referenced = true
		if quota.Available && !quota.Closed {
			anyOpen = true
		}
		if quota.AvailableNumber != nil {
			n := *quota.AvailableNumber
			if n < 0 {
				n = 0
			}
			if minCount == nil || n < *minCount {
				minCount = &n
			}
		}
	}

	if !referenced {
		return Availability{Available: true}
	}
	if !anyOpen {
		return Availability{Available: false, Count: minCount}
	}
	if minCount != nil && *minCount == 0 {
		return Availability{Available: false, Count: minCount}
	}
	return Availability{Available: true, Count: minCount}
}

func references(q *external.Quota, itemID int64) bool {
	for _, id := range q.Items {
		if id == itemID {
			return true
		}
	}
	return false
}
