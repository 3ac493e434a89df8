package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"novelrank/pkg/models"
)

const (
	ZonghengKey  = "zongheng"
	ZonghengName = "纵横中文网"

	zonghengBaseURL = "https://www.zongheng.com"
	zonghengDefault = "default"
)

type zonghengRank struct {
	ID   string // rankType, "default" for 人气榜
	Name string
	Nav  string
}

var zonghengRanks = []zonghengRank{
	{zonghengDefault, "人气榜", "default"},
	{"1", "月票榜", "monthly-ticket"},
	{"3", "24小时畅销榜", "one-day"},
	{"4", "新书榜", "new-book"},
	{"5", "点击榜", "click"},
	{"6", "推荐榜", "recommend"},
	{"8", "完结榜", "end"},
}

var zonghengPeriodMap = map[string]string{
	"read":      "5",
	"hot":       zonghengDefault,
	"new":       "4",
	"end":       "8",
	"click":     "5",
	"monthly":   "1",
	"recommend": "6",
}

// lists fetched by ScrapeAll when no period is given
var zonghengAllRanks = []string{zonghengDefault, "4", "5", "8"}

var zonghengSlotRe = regexp.MustCompile(`([\d.]+)\s*(万字|月票|人气|点击|推荐票)`)

const (
	zonghengTitleMin = 2
	zonghengTitleMax = 50
	zonghengAuthor   = `a[href*="/show/userInfo/"]`
	zonghengDetail   = `a[href*="/detail/"]`
)

// Zongheng scrapes zongheng.com/rank. Lists are not split by channel.
type Zongheng struct {
	opts  Options
	fetch *fetcher
	log   *zap.Logger
}

func NewZongheng(o Options) *Zongheng {
	o = o.withDefaults(zonghengBaseURL, "scraper."+ZonghengKey)
	return &Zongheng{opts: o, fetch: newFetcher(o), log: o.Logger}
}

func (s *Zongheng) Key() string  { return ZonghengKey }
func (s *Zongheng) Name() string { return ZonghengName }

func (s *Zongheng) ListCategories() []models.Category {
	out := make([]models.Category, 0, len(zonghengRanks))
	for _, r := range zonghengRanks {
		out = append(out, models.Category{
			ID:         r.ID,
			Name:       r.Name,
			Gender:     "male",
			GenderName: models.GenderAll,
			Period:     r.Nav,
		})
	}
	return out
}

func zonghengRankByID(id string) zonghengRank {
	for _, r := range zonghengRanks {
		if r.ID == id {
			return r
		}
	}
	return zonghengRanks[0]
}

// ScrapeRanking fetches the list named by categoryID; unknown ids fall back to
// the period mapping and then to 人气榜.
func (s *Zongheng) ScrapeRanking(ctx context.Context, categoryID, _ string, period string) ([]models.NovelRank, error) {
	id := categoryID
	if id == "" {
		id = zonghengPeriodMap[period]
	}
	return s.fetchRank(ctx, zonghengRankByID(id))
}

func (s *Zongheng) ScrapeAll(ctx context.Context, f Filter) ([]models.NovelRank, error) {
	ids := zonghengAllRanks
	if f.Period != "" {
		if id, ok := zonghengPeriodMap[f.Period]; ok {
			ids = []string{id}
		} else {
			ids = []string{zonghengDefault}
		}
	} else if len(f.Categories) > 0 {
		ids = nil
		for _, c := range s.ListCategories() {
			if f.wantsCategory(c) {
				ids = append(ids, c.ID)
			}
		}
	}

	var all []models.NovelRank
	for _, id := range ids {
		recs, err := s.fetchRank(ctx, zonghengRankByID(id))
		if err != nil {
			return all, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

func (s *Zongheng) fetchRank(ctx context.Context, r zonghengRank) ([]models.NovelRank, error) {
	q := url.Values{}
	q.Set("nav", r.Nav)
	if r.ID != zonghengDefault {
		q.Set("rankType", r.ID)
	}
	u := s.opts.BaseURL + "/rank?" + q.Encode()

	header := map[string][]string{"Referer": {zonghengBaseURL + "/"}}
	body, err := s.fetch.page(ctx, u, header)
	if err != nil || body == nil {
		return nil, err
	}
	return s.parse(body, listMeta{
		Source:     ZonghengKey,
		SourceName: ZonghengName,
		Category:   r.Name,
		Gender:     models.GenderAll,
		Period:     r.Name,
	}), nil
}

func validZonghengTitle(t string) bool {
	n := utf8.RuneCountInString(t)
	return n >= zonghengTitleMin && n <= zonghengTitleMax
}

func (s *Zongheng) parse(body []byte, meta listMeta) []models.NovelRank {
	acc := newAccumulator(meta, s.log)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.log.Warn("parse html", zap.Error(err))
		embeddedTier(acc, body, s.bookURL)
		return acc.result()
	}

	seen := map[string]bool{}
	books := doc.Find(".zh-modules-rank-book")
	if books.Length() > 0 {
		books.Each(func(i int, book *goquery.Selection) {
			acc.try(i, func() (models.NovelRank, error) {
				rec, err := s.parseBook(book)
				if err != nil || seen[Clean(rec.Title)] {
					return models.NovelRank{}, err
				}
				seen[Clean(rec.Title)] = true
				return rec, nil
			})
		})
		return acc.result()
	}

	// detail links anywhere on the page, author from parent or grandparent
	doc.Find(zonghengDetail).Each(func(i int, a *goquery.Selection) {
		title := Clean(a.Text())
		if !validZonghengTitle(title) || seen[title] {
			return
		}
		seen[title] = true
		href, _ := a.Attr("href")
		rec := models.NovelRank{Title: title, BookURL: absURL(s.opts.BaseURL, href)}
		for _, scope := range []*goquery.Selection{a.Parent(), a.Parent().Parent()} {
			if au := scope.Find(zonghengAuthor).First(); au.Length() > 0 {
				rec.Author = au.Text()
				h, _ := au.Attr("href")
				rec.AuthorURL = absURL(s.opts.BaseURL, h)
				break
			}
		}
		acc.add(rec)
	})
	if len(acc.records) > 0 {
		return acc.result()
	}

	embeddedTier(acc, body, s.bookURL)
	return acc.result()
}

func (s *Zongheng) parseBook(book *goquery.Selection) (models.NovelRank, error) {
	var title *goquery.Selection
	book.Find(zonghengDetail).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if validZonghengTitle(Clean(a.Text())) {
			title = a
			return false
		}
		return true
	})
	if title == nil {
		return models.NovelRank{}, fmt.Errorf("no detail link")
	}

	href, _ := title.Attr("href")
	rec := models.NovelRank{
		Title:   title.Text(),
		BookURL: absURL(s.opts.BaseURL, href),
		Extra:   map[string]string{},
	}
	if au := book.Find(zonghengAuthor).First(); au.Length() > 0 {
		rec.Author = au.Text()
		h, _ := au.Attr("href")
		rec.AuthorURL = absURL(s.opts.BaseURL, h)
	}
	slot := Clean(book.Find(".rank-content-default__right-slot").First().Text())
	if m := zonghengSlotRe.FindStringSubmatch(slot); m != nil {
		if m[2] == "万字" {
			rec.Extra[models.ExtraWordCount] = m[1] + m[2]
		} else {
			rec.Extra[models.ExtraHeat] = m[1] + m[2]
		}
	}
	return rec, nil
}

func (s *Zongheng) bookURL(id string) string {
	return s.opts.BaseURL + "/detail/" + id
}
