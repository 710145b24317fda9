// Package catalog retrieves, filters and sorts marketplace items.
package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/soyeahso/bazaar/internal/domain"
)

// Sort orders understood by Sort. Anything else sorts by name.
const (
	SortPopular      = "popular"
	SortRecent       = "recent"
	SortAlphabetical = "alphabetical"
)

// Filters narrows and orders a listing. User, when set, identifies the
// caller for author backfill.
type Filters struct {
	Category string       `json:"category"`
	Search   string       `json:"search"`
	SortBy   string       `json:"sort_by"`
	User     *domain.User `json:"user,omitempty"`
}

// Matches reports whether item passes the category and search filters.
func Matches(item domain.Listable, category, search string) bool {
	l := item.Listing()
	if category != "" && l.Category != category {
		return false
	}
	if search == "" {
		return true
	}
	q := strings.ToLower(search)
	if strings.Contains(strings.ToLower(l.Name), q) || strings.Contains(strings.ToLower(l.Description), q) {
		return true
	}
	for _, tag := range l.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Filter returns the items matching category and search, preserving order.
func Filter[T domain.Listable](items []T, category, search string) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if Matches(item, category, search) {
			out = append(out, item)
		}
	}
	return out
}

// Sort returns a sorted copy of items.
//
// popular and recent order by published_at descending, items without a
// timestamp counting as 0; equal timestamps keep their input order. Any
// other value orders by name using English collation. With officialFirst,
// official items precede the rest before either key applies.
func Sort[T domain.Listable](items []T, sortBy string, officialFirst bool) []T {
	listings := make([]domain.Listing, len(items))
	for i, item := range items {
		listings[i] = item.Listing()
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}

	byTime := sortBy == SortPopular || sortBy == SortRecent
	var millis []int64
	var col *collate.Collator
	if byTime {
		millis = make([]int64, len(listings))
		for i, l := range listings {
			millis[i] = domain.TimestampMillis(l.PublishedAt)
		}
	} else {
		col = collate.New(language.English)
	}

	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if officialFirst && listings[i].Official != listings[j].Official {
			return listings[i].Official
		}
		if byTime {
			return millis[i] > millis[j]
		}
		return col.CompareString(listings[i].Name, listings[j].Name) < 0
	})

	sorted := make([]T, len(items))
	for k, i := range idx {
		sorted[k] = items[i]
	}
	return sorted
}

// Apply filters then sorts items.
func Apply[T domain.Listable](items []T, f Filters, officialFirst bool) []T {
	return Sort(Filter(items, f.Category, f.Search), f.SortBy, officialFirst)
}
