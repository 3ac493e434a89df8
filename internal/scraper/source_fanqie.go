package scraper

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"novelrank/pkg/models"
)

const (
	FanqieKey  = "fanqie"
	FanqieName = "番茄小说"

	fanqieBaseURL = "https://fanqienovel.com"
)

type idName struct {
	ID   string
	Name string
}

var fanqieMale = []idName{
	{"1141", "西方奇幻"}, {"1140", "东方仙侠"}, {"8", "科幻末世"}, {"261", "都市日常"},
	{"124", "都市修真"}, {"1014", "都市高武"}, {"273", "历史古代"}, {"27", "战神赘婿"},
	{"263", "都市种田"}, {"258", "传统玄幻"}, {"272", "历史脑洞"}, {"539", "悬疑脑洞"},
	{"262", "都市脑洞"}, {"257", "玄幻脑洞"}, {"751", "悬疑灵异"}, {"504", "抗战谍战"},
	{"746", "游戏体育"}, {"718", "动漫衍生"}, {"1016", "男频衍生"},
}

var fanqieFemale = []idName{
	{"1139", "古风世情"}, {"8", "科幻末世"}, {"746", "游戏体育"}, {"1015", "女频衍生"},
	{"248", "玄幻言情"}, {"23", "种田"}, {"79", "年代"}, {"267", "现言脑洞"},
	{"246", "宫斗宅斗"}, {"539", "悬疑脑洞"}, {"253", "古言脑洞"}, {"24", "快穿"},
	{"749", "青春甜宠"}, {"745", "星光璀璨"}, {"747", "女频悬疑"}, {"750", "职场婚恋"},
	{"748", "豪门总裁"}, {"1017", "民国言情"},
}

var (
	fanqieGenderCode = map[string]string{"male": "1", "female": "0"}
	fanqiePeriodCode = map[string]string{"new": "1", "read": "2"}
	fanqiePeriodName = map[string]string{"1": "新书榜", "2": "阅读榜"}
)

const fanqieChapterPrefix = "最近更新："

// Fanqie scrapes the per-category rank pages of fanqienovel.com.
type Fanqie struct {
	opts  Options
	fetch *fetcher
	log   *zap.Logger
}

func NewFanqie(o Options) *Fanqie {
	o = o.withDefaults(fanqieBaseURL, "scraper."+FanqieKey)
	return &Fanqie{opts: o, fetch: newFetcher(o), log: o.Logger}
}

func (s *Fanqie) Key() string  { return FanqieKey }
func (s *Fanqie) Name() string { return FanqieName }

func (s *Fanqie) ListCategories() []models.Category {
	var out []models.Category
	for _, c := range fanqieMale {
		out = append(out, models.Category{ID: c.ID, Name: c.Name, Gender: "male", GenderName: models.GenderMale})
	}
	for _, c := range fanqieFemale {
		out = append(out, models.Category{ID: c.ID, Name: c.Name, Gender: "female", GenderName: models.GenderFemale})
	}
	return out
}

func fanqieCategoryName(gender, id string) string {
	list := fanqieMale
	if gender == "female" {
		list = fanqieFemale
	}
	for _, c := range list {
		if c.ID == id {
			return c.Name
		}
	}
	return "未知分类"
}

func (s *Fanqie) ScrapeRanking(ctx context.Context, categoryID, gender, period string) ([]models.NovelRank, error) {
	if gender != "female" {
		gender = "male"
	}
	genderCode := fanqieGenderCode[gender]
	periodCode, ok := fanqiePeriodCode[period]
	if !ok {
		periodCode = fanqiePeriodCode["read"]
	}

	meta := listMeta{
		Source:     FanqieKey,
		SourceName: FanqieName,
		Category:   fanqieCategoryName(gender, categoryID),
		Gender:     genderLabel(gender),
		Period:     fanqiePeriodName[periodCode],
	}
	url := fmt.Sprintf("%s/rank/%s_%s_%s", s.opts.BaseURL, genderCode, periodCode, categoryID)
	s.log.Debug("scrape", zap.String("url", url), zap.String("category", meta.Category))

	body, err := s.fetch.page(ctx, url, nil)
	if err != nil || body == nil {
		return nil, err
	}
	return s.parse(body, meta), nil
}

func (s *Fanqie) parse(body []byte, meta listMeta) []models.NovelRank {
	acc := newAccumulator(meta, s.log)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.log.Warn("parse html", zap.Error(err))
		embeddedTier(acc, body, s.bookURL)
		return acc.result()
	}

	items := doc.Find("div.rank-book-item")
	if items.Length() > 0 {
		items.Each(func(i int, item *goquery.Selection) {
			acc.try(i, func() (models.NovelRank, error) { return s.parseItem(item) })
		})
		return acc.result()
	}

	titles := harvestLinks(doc, `a[href*="/page/"]`)
	if len(titles) > 0 {
		authors := harvestLinks(doc, `a[href*="/author-page/"]`)
		chapters := harvestLinks(doc, `a[href*="/reader/"]`)
		for _, h := range zipLinks(titles, authors, chapters) {
			acc.add(models.NovelRank{
				Title:         h.Title.Text,
				Author:        h.Author.Text,
				LatestChapter: strings.TrimPrefix(h.Chapter.Text, fanqieChapterPrefix),
				BookURL:       absURL(s.opts.BaseURL, h.Title.Href),
				AuthorURL:     absURL(s.opts.BaseURL, h.Author.Href),
			})
		}
		return acc.result()
	}

	embeddedTier(acc, body, s.bookURL)
	return acc.result()
}

func (s *Fanqie) parseItem(item *goquery.Selection) (models.NovelRank, error) {
	titleLink := item.Find(`a[href*="/page/"]`).First()
	if titleLink.Length() == 0 {
		return models.NovelRank{}, fmt.Errorf("no title link")
	}
	rec := models.NovelRank{
		Title: titleLink.Text(),
		Extra: map[string]string{},
	}
	if href, ok := titleLink.Attr("href"); ok {
		rec.BookURL = absURL(s.opts.BaseURL, href)
	}
	if a := item.Find(`a[href*="/author-page/"]`).First(); a.Length() > 0 {
		rec.Author = a.Text()
		href, _ := a.Attr("href")
		rec.AuthorURL = absURL(s.opts.BaseURL, href)
	}
	if c := item.Find(`a[href*="/reader/"]`).First(); c.Length() > 0 {
		rec.LatestChapter = strings.TrimPrefix(Clean(c.Text()), fanqieChapterPrefix)
	}
	if h := item.Find(`[class*="count"]`).First(); h.Length() > 0 {
		rec.Extra[models.ExtraHeat] = h.Text()
	}
	return rec, nil
}

func (s *Fanqie) bookURL(id string) string {
	return s.opts.BaseURL + "/page/" + id
}

// ScrapeAll walks gender × period × category. One failed page does not stop
// the others.
func (s *Fanqie) ScrapeAll(ctx context.Context, f Filter) ([]models.NovelRank, error) {
	genders := []string{"male", "female"}
	if f.Gender != "" {
		genders = []string{f.Gender}
	}
	periods := []string{"read", "new"}
	if f.Period != "" {
		periods = []string{f.Period}
	}

	var all []models.NovelRank
	for _, g := range genders {
		for _, p := range periods {
			for _, c := range s.ListCategories() {
				if c.Gender != g || !f.wantsCategory(c) {
					continue
				}
				recs, err := s.ScrapeRanking(ctx, c.ID, g, p)
				if err != nil {
					return all, err
				}
				all = append(all, recs...)
			}
		}
	}
	return all, nil
}

func genderLabel(gender string) string {
	switch gender {
	case "male":
		return models.GenderMale
	case "female":
		return models.GenderFemale
	}
	return models.GenderAll
}
