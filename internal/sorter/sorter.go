// Package sorter orders, groups and filters record lists for display.
// Every function returns a new slice and leaves its input untouched.
package sorter

import (
	"sort"

	"novelrank/pkg/models"
)

func sorted(in []models.NovelRank, less func(a, b models.NovelRank) bool) []models.NovelRank {
	out := append([]models.NovelRank(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func SortByRank(in []models.NovelRank) []models.NovelRank {
	return sorted(in, func(a, b models.NovelRank) bool { return a.Rank < b.Rank })
}

func SortByCategory(in []models.NovelRank) []models.NovelRank {
	return sorted(in, func(a, b models.NovelRank) bool {
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Rank < b.Rank
	})
}

func SortByGender(in []models.NovelRank) []models.NovelRank {
	return sorted(in, func(a, b models.NovelRank) bool {
		if a.Gender != b.Gender {
			return a.Gender < b.Gender
		}
		return a.Rank < b.Rank
	})
}

func SortByPeriod(in []models.NovelRank) []models.NovelRank {
	return sorted(in, func(a, b models.NovelRank) bool {
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.Rank < b.Rank
	})
}

// Apply sorts by "rank", "category", "gender" or "period". Any other key
// returns the records unchanged.
func Apply(in []models.NovelRank, key string) []models.NovelRank {
	switch key {
	case "rank":
		return SortByRank(in)
	case "category":
		return SortByCategory(in)
	case "gender":
		return SortByGender(in)
	case "period":
		return SortByPeriod(in)
	}
	return in
}

// Group is one bucket of records sharing a key.
type Group struct {
	Key     string             `json:"key"`
	Records []models.NovelRank `json:"records"`
}

func groupBy(in []models.NovelRank, key func(models.NovelRank) string) []Group {
	idx := map[string]int{}
	var out []Group
	for _, r := range in {
		k := key(r)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group{Key: k})
		}
		out[i].Records = append(out[i].Records, r)
	}
	return out
}

// GroupByCategory buckets by category in first-seen order.
func GroupByCategory(in []models.NovelRank) []Group {
	return groupBy(in, func(r models.NovelRank) string { return r.Category })
}

// GroupByGender buckets by channel in first-seen order.
func GroupByGender(in []models.NovelRank) []Group {
	return groupBy(in, func(r models.NovelRank) string { return r.Gender })
}

var (
	genderAliases = map[string]string{"male": models.GenderMale, "female": models.GenderFemale}
	periodAliases = map[string]string{"read": "阅读榜", "new": "新书榜"}
)

func filter(in []models.NovelRank, keep func(models.NovelRank) bool) []models.NovelRank {
	out := []models.NovelRank{}
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByGender accepts a channel label or "male" / "female".
func FilterByGender(in []models.NovelRank, gender string) []models.NovelRank {
	if g, ok := genderAliases[gender]; ok {
		gender = g
	}
	return filter(in, func(r models.NovelRank) bool { return r.Gender == gender })
}

// FilterByPeriod accepts a period label or "read" / "new".
func FilterByPeriod(in []models.NovelRank, period string) []models.NovelRank {
	if p, ok := periodAliases[period]; ok {
		period = p
	}
	return filter(in, func(r models.NovelRank) bool { return r.Period == period })
}

func FilterByCategory(in []models.NovelRank, categories []string) []models.NovelRank {
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	return filter(in, func(r models.NovelRank) bool { return want[r.Category] })
}
