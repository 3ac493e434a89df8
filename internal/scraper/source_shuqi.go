package scraper

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"novelrank/pkg/models"
)

const (
	ShuqiKey  = "shuqi"
	ShuqiName = "书旗小说"

	shuqiBaseURL = "https://www.shuqi.com"
)

type shuqiRank struct {
	Key    string
	Gender string // male / female
	Period string // 点击榜, 收藏榜 ...
}

var shuqiRanks = []shuqiRank{
	{"boyClick", "male", "点击榜"}, {"girlClick", "female", "点击榜"},
	{"boyStore", "male", "收藏榜"}, {"girlStore", "female", "收藏榜"},
	{"boyOrder", "male", "订阅榜"}, {"girlOrder", "female", "订阅榜"},
	{"boyhot", "male", "人气榜"}, {"girlhot", "female", "人气榜"},
	{"boyEnd", "male", "完结榜"}, {"girlEnd", "female", "完结榜"},
	{"boyNew", "male", "新书榜"}, {"girlNew", "female", "新书榜"},
}

var shuqiPeriodMap = map[string]string{
	"click": "点击榜", "read": "点击榜",
	"store": "收藏榜",
	"order": "订阅榜",
	"hot":   "人气榜",
	"end":   "完结榜",
	"new":   "新书榜",
}

const shuqiFallbackPeriod = "总榜"

func shuqiRankByKey(key string) (shuqiRank, bool) {
	for _, r := range shuqiRanks {
		if r.Key == key {
			return r, true
		}
	}
	return shuqiRank{}, false
}

// Shuqi scrapes shuqi.com/rank. The single page carries every list, so one
// fetch serves any combination of gender and period.
type Shuqi struct {
	opts  Options
	fetch *fetcher
	log   *zap.Logger
}

func NewShuqi(o Options) *Shuqi {
	o = o.withDefaults(shuqiBaseURL, "scraper."+ShuqiKey)
	return &Shuqi{opts: o, fetch: newFetcher(o), log: o.Logger}
}

func (s *Shuqi) Key() string  { return ShuqiKey }
func (s *Shuqi) Name() string { return ShuqiName }

func (s *Shuqi) ListCategories() []models.Category {
	out := make([]models.Category, 0, len(shuqiRanks))
	for _, r := range shuqiRanks {
		out = append(out, models.Category{
			ID:         r.Key,
			Name:       r.Period,
			Gender:     r.Gender,
			GenderName: genderLabel(r.Gender),
			Period:     r.Period,
		})
	}
	return out
}

func (s *Shuqi) ScrapeRanking(ctx context.Context, categoryID, gender, period string) ([]models.NovelRank, error) {
	sections, err := s.fetchSections(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := shuqiRankByKey(categoryID); ok {
		return sections[categoryID], nil
	}
	periodName := shuqiPeriodMap[period]
	if periodName == "" {
		periodName = period
	}
	for _, r := range shuqiRanks {
		if r.Gender == gender && r.Period == periodName {
			return sections[r.Key], nil
		}
	}
	return nil, nil
}

func (s *Shuqi) ScrapeAll(ctx context.Context, f Filter) ([]models.NovelRank, error) {
	sections, err := s.fetchSections(ctx)
	if err != nil {
		return nil, err
	}
	periodName := ""
	if f.Period != "" {
		if periodName = shuqiPeriodMap[f.Period]; periodName == "" {
			periodName = f.Period
		}
	}

	var all []models.NovelRank
	for _, c := range s.ListCategories() {
		if !f.wantsGender(c.Gender) || !f.wantsCategory(c) {
			continue
		}
		if periodName != "" && c.Period != periodName {
			continue
		}
		all = append(all, sections[c.ID]...)
	}
	if fallback := sections[""]; len(fallback) > 0 && f.IsZero() {
		all = append(all, fallback...)
	}
	return all, nil
}

// fetchSections returns the records of every known list keyed by rank key.
// Records recovered only through the text fallback sit under "".
func (s *Shuqi) fetchSections(ctx context.Context) (map[string][]models.NovelRank, error) {
	body, err := s.fetch.page(ctx, s.opts.BaseURL+"/rank", nil)
	if err != nil || body == nil {
		return map[string][]models.NovelRank{}, err
	}
	return s.parse(body), nil
}

func hasClass(name string) string {
	return "contains(concat(' ', normalize-space(@class), ' '), ' " + name + " ')"
}

var (
	shuqiSectionXPath = "//div[" + hasClass("comp-ranks-2") + "]"
	shuqiMoreXPath    = ".//a[contains(@href, '/ranklist?rank=')]"
	shuqiBookXPath    = ".//ul[" + hasClass("cp-ranks-list") + "]//a[contains(@href, '/book/')]"
	shuqiNoXPath      = ".//i[" + hasClass("no") + "]"
	shuqiTitleXPath   = ".//span[" + hasClass("bn") + "]"
	shuqiAuthorXPath  = ".//span[" + hasClass("au") + "]"
)

func (s *Shuqi) parse(body []byte) map[string][]models.NovelRank {
	out := map[string][]models.NovelRank{}

	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err == nil {
		for _, sec := range htmlquery.Find(doc, shuqiSectionXPath) {
			more := htmlquery.FindOne(sec, shuqiMoreXPath)
			if more == nil {
				continue
			}
			href := htmlquery.SelectAttr(more, "href")
			_, key, _ := strings.Cut(href, "rank=")
			if i := strings.IndexAny(key, "&#"); i >= 0 {
				key = key[:i]
			}
			r, ok := shuqiRankByKey(key)
			if !ok {
				continue
			}
			out[key] = s.parseSection(sec, r)
		}
	} else {
		s.log.Warn("parse html", zap.Error(err))
	}
	if len(out) > 0 {
		return out
	}

	acc := newAccumulator(listMeta{
		Source:     ShuqiKey,
		SourceName: ShuqiName,
		Category:   shuqiFallbackPeriod,
		Gender:     models.GenderAll,
		Period:     shuqiFallbackPeriod,
	}, s.log)
	embeddedTier(acc, body, func(id string) string { return s.opts.BaseURL + "/book/" + id + ".html" })
	if recs := acc.result(); len(recs) > 0 {
		out[""] = recs
	}
	return out
}

func (s *Shuqi) parseSection(sec *html.Node, r shuqiRank) []models.NovelRank {
	acc := newAccumulator(listMeta{
		Source:     ShuqiKey,
		SourceName: ShuqiName,
		Category:   r.Period,
		Gender:     genderLabel(r.Gender),
		Period:     r.Period,
	}, s.log)

	for i, a := range htmlquery.Find(sec, shuqiBookXPath) {
		a := a
		acc.try(i, func() (models.NovelRank, error) {
			bn := htmlquery.FindOne(a, shuqiTitleXPath)
			if bn == nil {
				return models.NovelRank{}, nil
			}
			rec := models.NovelRank{
				Title:   htmlquery.InnerText(bn),
				BookURL: absURL(s.opts.BaseURL, htmlquery.SelectAttr(a, "href")),
			}
			if au := htmlquery.FindOne(a, shuqiAuthorXPath); au != nil {
				rec.Author = htmlquery.InnerText(au)
			}
			if no := htmlquery.FindOne(a, shuqiNoXPath); no != nil {
				if n, err := strconv.Atoi(strings.TrimSpace(htmlquery.InnerText(no))); err == nil && n > 0 {
					rec.Rank = n
				}
			}
			return rec, nil
		})
	}
	return acc.result()
}
