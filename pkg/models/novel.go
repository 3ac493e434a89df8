package models

import "fmt"

// Channel labels used across all sources.
const (
	GenderMale   = "男频"
	GenderFemale = "女频"
	GenderAll    = "全部"
)

// NovelRank is the normalized, source-independent form of one ranked novel
// entry. Every site adapter maps its own page structure into this shape
// before anything is persisted or aggregated.
//
// Title is the only required field; everything else defaults to the zero
// value rather than being absent.
type NovelRank struct {
	Rank          int               `json:"rank"`           // position within its own ranking list
	Title         string            `json:"title"`          // book title
	Author        string            `json:"author"`         // may be empty
	Category      string            `json:"category"`       // site-specific taxonomy label
	Gender        string            `json:"gender"`         // channel label (男频/女频/全部)
	Period        string            `json:"period"`         // ranking type label (阅读榜/新书榜/...)
	LatestChapter string            `json:"latest_chapter"` // may be empty
	BookURL       string            `json:"book_url"`       // absolute URL or empty
	AuthorURL     string            `json:"author_url"`     // absolute URL or empty
	Source        string            `json:"source"`         // adapter key, e.g. "fanqie"
	SourceName    string            `json:"source_name"`    // display name, e.g. "番茄小说"
	Extra         map[string]string `json:"extra"`          // heat, word_count, status, intro ...
}

// Extra keys shared by the adapters.
const (
	ExtraHeat      = "heat"
	ExtraWordCount = "word_count"
	ExtraStatus    = "status"
	ExtraIntro     = "intro"
	ExtraBookID    = "book_id"
)

// Heat returns the raw heat text, or "" when the source reported none.
func (n NovelRank) Heat() string {
	if n.Extra == nil {
		return ""
	}
	return n.Extra[ExtraHeat]
}

// Normalized returns a copy with a non-nil Extra map.
func (n NovelRank) Normalized() NovelRank {
	if n.Extra == nil {
		n.Extra = map[string]string{}
	}
	return n
}

func (n NovelRank) String() string {
	return fmt.Sprintf("[%d] %s - %s (%s)", n.Rank, n.Title, n.Author, n.Category)
}

// Category describes one ranking list an adapter can fetch.
type Category struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Gender     string `json:"gender"`      // "male" / "female"
	GenderName string `json:"gender_name"` // 男频 / 女频 / 全部
	Period     string `json:"period,omitempty"`
}
