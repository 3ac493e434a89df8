package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"novelrank/pkg/models"
)

const (
	QimaoKey  = "qimao"
	QimaoName = "七猫小说"

	qimaoBaseURL = "https://www.qimao.com"
)

var qimaoRanks = []idName{
	{"hot", "大热榜"}, {"new", "新书榜"}, {"over", "完结榜"}, {"collect", "收藏榜"}, {"update", "更新榜"},
}

var (
	qimaoGenderPath = map[string]string{"male": "boy", "female": "girl"}
	qimaoPeriodMap  = map[string]string{
		"read": "hot", "hot": "hot", "new": "new", "over": "over", "end": "over",
		"collect": "collect", "update": "update",
	}

	qimaoUpdatePrefix = regexp.MustCompile(`^最近更新\s*`)
	qimaoUpdateStamp  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}$`)
)

// Qimao scrapes the paihang pages of qimao.com. Its "categories" are
// gender × rank type.
type Qimao struct {
	opts  Options
	fetch *fetcher
	log   *zap.Logger
}

func NewQimao(o Options) *Qimao {
	o = o.withDefaults(qimaoBaseURL, "scraper."+QimaoKey)
	return &Qimao{opts: o, fetch: newFetcher(o), log: o.Logger}
}

func (s *Qimao) Key() string  { return QimaoKey }
func (s *Qimao) Name() string { return QimaoName }

func (s *Qimao) ListCategories() []models.Category {
	var out []models.Category
	for _, g := range []string{"male", "female"} {
		for _, r := range qimaoRanks {
			out = append(out, models.Category{
				ID:         qimaoGenderPath[g] + "_" + r.ID,
				Name:       r.Name,
				Gender:     g,
				GenderName: genderLabel(g),
				Period:     r.ID,
			})
		}
	}
	return out
}

func qimaoRankName(key string) string {
	for _, r := range qimaoRanks {
		if r.ID == key {
			return r.Name
		}
	}
	return key
}

// ScrapeRanking accepts either a category id such as "girl_new" or gender
// and period.
func (s *Qimao) ScrapeRanking(ctx context.Context, categoryID, gender, period string) ([]models.NovelRank, error) {
	genderPath, ok := qimaoGenderPath[gender]
	if !ok {
		genderPath = "boy"
	}
	rankKey, ok := qimaoPeriodMap[period]
	if !ok {
		rankKey = "hot"
	}
	if g, r, found := strings.Cut(categoryID, "_"); found {
		if g == "boy" || g == "girl" {
			genderPath = g
		}
		if _, known := qimaoPeriodMap[r]; known {
			rankKey = qimaoPeriodMap[r]
		}
	}
	return s.fetchRank(ctx, genderPath, rankKey)
}

func (s *Qimao) fetchRank(ctx context.Context, genderPath, rankKey string) ([]models.NovelRank, error) {
	gender := "male"
	if genderPath == "girl" {
		gender = "female"
	}
	rankName := qimaoRankName(rankKey)
	meta := listMeta{
		Source:     QimaoKey,
		SourceName: QimaoName,
		Category:   rankName,
		Gender:     genderLabel(gender),
		Period:     rankName,
	}

	header := http.Header{}
	header.Set("Referer", qimaoBaseURL+"/paihang")

	url := fmt.Sprintf("%s/paihang/%s/%s/", s.opts.BaseURL, genderPath, rankKey)
	body, err := s.fetch.Get(ctx, url, header)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusMethodNotAllowed {
		url += "date/"
		body, err = s.fetch.Get(ctx, url, header)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("fetch failed", zap.String("url", url), zap.Error(err))
		return nil, nil
	}
	return s.parse(body, meta), nil
}

func (s *Qimao) parse(body []byte, meta listMeta) []models.NovelRank {
	acc := newAccumulator(meta, s.log)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.log.Warn("parse html", zap.Error(err))
		embeddedTier(acc, body, s.bookURL)
		return acc.result()
	}

	items := doc.Find("li.rank-list-item")
	if items.Length() > 0 {
		items.Each(func(i int, item *goquery.Selection) {
			acc.try(i, func() (models.NovelRank, error) { return s.parseItem(item) })
		})
		return acc.result()
	}

	titles := harvestLinks(doc, `a[href*="/shuku/"][href$="/"]:not([href*="/shuku/a-"])`)
	if len(titles) > 0 {
		authors := harvestLinks(doc, `a[href*="/zuozhe/"]`)
		chapters := harvestLinks(doc, `a[href*="/reader/"]`)
		for _, h := range zipLinks(titles, authors, chapters) {
			acc.add(models.NovelRank{
				Title:         h.Title.Text,
				Author:        h.Author.Text,
				LatestChapter: h.Chapter.Text,
				BookURL:       absURL(s.opts.BaseURL, h.Title.Href),
				AuthorURL:     absURL(s.opts.BaseURL, h.Author.Href),
			})
		}
		return acc.result()
	}

	embeddedTier(acc, body, s.bookURL)
	return acc.result()
}

func (s *Qimao) parseItem(item *goquery.Selection) (models.NovelRank, error) {
	titleLink := item.Find("a.s-book-title").First()
	if titleLink.Length() == 0 {
		return models.NovelRank{}, fmt.Errorf("no title link")
	}
	rec := models.NovelRank{Title: titleLink.Text(), Extra: map[string]string{}}
	href, _ := titleLink.Attr("href")
	rec.BookURL = absURL(s.opts.BaseURL, href)

	info := item.Find("span.s-book-info").First()
	info.Find("a").Each(func(_ int, a *goquery.Selection) {
		h, _ := a.Attr("href")
		switch {
		case strings.Contains(h, "/zuozhe/"):
			rec.Author = a.Text()
			rec.AuthorURL = absURL(s.opts.BaseURL, h)
		case strings.Contains(h, "/shuku/a-"):
			rec.Category = a.Text()
		}
	})
	info.Find("em").Each(func(_ int, em *goquery.Selection) {
		t := Clean(em.Text())
		switch {
		case strings.Contains(t, "字"):
			rec.Extra[models.ExtraWordCount] = t
		case t == "连载中" || t == "已完结":
			rec.Extra[models.ExtraStatus] = t
		}
	})

	rec.Extra[models.ExtraIntro] = item.Find("span.s-book-intro").First().Text()

	if update := item.Find("span.s-book-update").First(); update.Length() > 0 {
		text := update.Text()
		if a := update.Find("a").First(); a.Length() > 0 {
			text = a.Text()
		}
		text = qimaoUpdatePrefix.ReplaceAllString(Clean(text), "")
		rec.LatestChapter = strings.TrimSpace(qimaoUpdateStamp.ReplaceAllString(text, ""))
	}

	if num := item.Find("em.rank-num").First(); num.Length() > 0 {
		rec.Extra[models.ExtraHeat] = Clean(num.Text()) + Clean(item.Find("em.rank-unit").First().Text())
	}
	return rec, nil
}

func (s *Qimao) bookURL(id string) string {
	return s.opts.BaseURL + "/shuku/" + id + "/"
}

func (s *Qimao) ScrapeAll(ctx context.Context, f Filter) ([]models.NovelRank, error) {
	var all []models.NovelRank
	for _, c := range s.ListCategories() {
		if !f.wantsGender(c.Gender) || !f.wantsCategory(c) {
			continue
		}
		if f.Period != "" && qimaoPeriodMap[f.Period] != c.Period {
			continue
		}
		recs, err := s.fetchRank(ctx, qimaoGenderPath[c.Gender], c.Period)
		if err != nil {
			return all, err
		}
		all = append(all, recs...)
	}
	return all, nil
}
