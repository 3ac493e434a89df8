// Package analytics aggregates already loaded snapshot records. Nothing here
// performs I/O.
package analytics

import (
	"sort"

	"novelrank/internal/heat"
	"novelrank/pkg/models"
)

const (
	CategoryTopN       = 10
	CrossPlatformLimit = 20
	ChannelLimit       = 30

	Uncategorized = "未分类"
)

// BookHeat is one record reduced to what the rankings display.
type BookHeat struct {
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Category   string  `json:"category"`
	Gender     string  `json:"gender"`
	Source     string  `json:"source"`
	SourceName string  `json:"source_name"`
	Rank       int     `json:"rank"`
	Heat       string  `json:"heat"`
	HeatValue  float64 `json:"heat_value"`
}

func toBookHeat(r models.NovelRank) BookHeat {
	h := r.Heat()
	return BookHeat{
		Title:      r.Title,
		Author:     r.Author,
		Category:   r.Category,
		Gender:     r.Gender,
		Source:     r.Source,
		SourceName: r.SourceName,
		Rank:       r.Rank,
		Heat:       h,
		HeatValue:  heat.Parse(h),
	}
}

// byHeat orders by heat descending, then by title, source and rank so the
// result does not depend on input order.
func byHeat(b []BookHeat) func(i, j int) bool {
	return func(i, j int) bool {
		if b[i].HeatValue != b[j].HeatValue {
			return b[i].HeatValue > b[j].HeatValue
		}
		if b[i].Title != b[j].Title {
			return b[i].Title < b[j].Title
		}
		if b[i].Source != b[j].Source {
			return b[i].Source < b[j].Source
		}
		return b[i].Rank < b[j].Rank
	}
}

// CategoryRank scores one category by the summed heat of its hottest books.
type CategoryRank struct {
	Category  string     `json:"category"`
	TotalHeat float64    `json:"total_heat"`
	BookCount int        `json:"book_count"` // all records in the category
	TopBooks  []BookHeat `json:"top_books"`
}

// CategoryRanking groups records by category, sums the heat of the top
// CategoryTopN records of each and sorts categories by that sum.
func CategoryRanking(records []models.NovelRank) []CategoryRank {
	groups := map[string][]BookHeat{}
	for _, r := range records {
		cat := r.Category
		if cat == "" {
			cat = Uncategorized
		}
		groups[cat] = append(groups[cat], toBookHeat(r))
	}

	out := make([]CategoryRank, 0, len(groups))
	for cat, books := range groups {
		sort.SliceStable(books, byHeat(books))
		top := books
		if len(top) > CategoryTopN {
			top = top[:CategoryTopN]
		}
		var total float64
		for _, b := range top {
			total += b.HeatValue
		}
		out = append(out, CategoryRank{
			Category:  cat,
			TotalHeat: total,
			BookCount: len(books),
			TopBooks:  append([]BookHeat(nil), top...),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalHeat != out[j].TotalHeat {
			return out[i].TotalHeat > out[j].TotalHeat
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// CrossPlatformMatch is a title listed by at least two sources.
type CrossPlatformMatch struct {
	Title       string     `json:"title"`
	SourceCount int        `json:"source_count"`
	Sources     []string   `json:"sources"`
	Entries     []BookHeat `json:"entries"`
}

// CrossPlatform groups records by exact title and keeps groups seen on two
// or more distinct sources, most widespread first, capped at
// CrossPlatformLimit.
func CrossPlatform(records []models.NovelRank) []CrossPlatformMatch {
	type group struct {
		sources map[string]bool
		entries []BookHeat
	}
	groups := map[string]*group{}
	for _, r := range records {
		if r.Title == "" {
			continue
		}
		g, ok := groups[r.Title]
		if !ok {
			g = &group{sources: map[string]bool{}}
			groups[r.Title] = g
		}
		g.sources[r.Source] = true
		g.entries = append(g.entries, toBookHeat(r))
	}

	var out []CrossPlatformMatch
	for title, g := range groups {
		if len(g.sources) < 2 {
			continue
		}
		sources := make([]string, 0, len(g.sources))
		for s := range g.sources {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		sort.SliceStable(g.entries, func(i, j int) bool {
			if g.entries[i].Source != g.entries[j].Source {
				return g.entries[i].Source < g.entries[j].Source
			}
			return g.entries[i].Rank < g.entries[j].Rank
		})
		out = append(out, CrossPlatformMatch{
			Title:       title,
			SourceCount: len(sources),
			Sources:     sources,
			Entries:     g.entries,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceCount != out[j].SourceCount {
			return out[i].SourceCount > out[j].SourceCount
		}
		return out[i].Title < out[j].Title
	})
	if len(out) > CrossPlatformLimit {
		out = out[:CrossPlatformLimit]
	}
	if out == nil {
		out = []CrossPlatformMatch{}
	}
	return out
}

// ChannelRanking holds the hottest records per channel.
type ChannelRanking struct {
	Male   []BookHeat `json:"male"`
	Female []BookHeat `json:"female"`
}

// ChannelHeat buckets records with a positive heat value into the male and
// female channels, sorted by heat and capped at ChannelLimit each. Records of
// other channels are ignored.
func ChannelHeat(records []models.NovelRank) ChannelRanking {
	res := ChannelRanking{Male: []BookHeat{}, Female: []BookHeat{}}
	for _, r := range records {
		b := toBookHeat(r)
		if b.HeatValue <= 0 {
			continue
		}
		switch r.Gender {
		case models.GenderMale:
			res.Male = append(res.Male, b)
		case models.GenderFemale:
			res.Female = append(res.Female, b)
		}
	}
	for _, bucket := range []*[]BookHeat{&res.Male, &res.Female} {
		b := *bucket
		sort.SliceStable(b, byHeat(b))
		if len(b) > ChannelLimit {
			*bucket = b[:ChannelLimit]
		}
	}
	return res
}
