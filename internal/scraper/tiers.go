package scraper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"novelrank/pkg/models"
)

// page context shared by every record parsed from one ranking list
type listMeta struct {
	Source     string
	SourceName string
	Category   string
	Gender     string
	Period     string
}

// accumulator collects records of one list in emission order.
type accumulator struct {
	meta    listMeta
	log     *zap.Logger
	records []models.NovelRank
}

func newAccumulator(meta listMeta, log *zap.Logger) *accumulator {
	return &accumulator{meta: meta, log: log}
}

// add cleans rec, fills the list metadata and appends it. Records without a
// title are dropped. A rank <= 0 becomes 1 + the number already accepted.
func (a *accumulator) add(rec models.NovelRank) bool {
	rec.Title = Clean(rec.Title)
	if rec.Title == "" {
		return false
	}
	rec.Author = Clean(rec.Author)
	rec.LatestChapter = Clean(rec.LatestChapter)
	rec.Category = Clean(firstNonEmpty(rec.Category, a.meta.Category))
	rec.Gender = firstNonEmpty(rec.Gender, a.meta.Gender)
	rec.Period = firstNonEmpty(rec.Period, a.meta.Period)
	rec.Source = a.meta.Source
	rec.SourceName = a.meta.SourceName
	rec = rec.Normalized()
	for k, v := range rec.Extra {
		if v = Clean(v); v == "" {
			delete(rec.Extra, k)
		} else {
			rec.Extra[k] = v
		}
	}
	if rec.Rank <= 0 {
		rec.Rank = len(a.records) + 1
	}
	a.records = append(a.records, rec)
	return true
}

// try runs one entry parser. An error or panic skips only that entry.
func (a *accumulator) try(idx int, parse func() (models.NovelRank, error)) {
	rec, err := guard(parse)
	if err != nil {
		a.log.Warn("skip entry", zap.Int("index", idx), zap.String("category", a.meta.Category), zap.Error(err))
		return
	}
	a.add(rec)
}

func (a *accumulator) result() []models.NovelRank {
	return a.records
}

func guard(parse func() (models.NovelRank, error)) (rec models.NovelRank, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return parse()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ---- tier 2: link harvest ----

type link struct {
	Text string
	Href string
}

// harvestLinks collects every element matching selector, skipping empty
// text and repeated hrefs while keeping first-seen order.
func harvestLinks(doc *goquery.Document, selector string) []link {
	seen := map[string]bool{}
	var out []link
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := Clean(s.Text())
		if text == "" || href == "" || seen[href] {
			return
		}
		seen[href] = true
		out = append(out, link{Text: text, Href: href})
	})
	return out
}

type harvested struct {
	Title   link
	Author  link
	Chapter link
}

// zipLinks pairs the independently collected lists by index. Entries past the
// end of the author or chapter list get empty values. Alignment is only right
// when the page renders the three lists in the same order and length.
func zipLinks(titles, authors, chapters []link) []harvested {
	out := make([]harvested, 0, len(titles))
	for i, t := range titles {
		h := harvested{Title: t}
		if i < len(authors) {
			h.Author = authors[i]
		}
		if i < len(chapters) {
			h.Chapter = chapters[i]
		}
		out = append(out, h)
	}
	return out
}

// ---- tier 3: embedded JSON ----

var embeddedMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<script[^>]*id="__NEXT_DATA__"[^>]*>(.*?)</script>`),
	regexp.MustCompile(`(?s)window\.__INITIAL_STATE__\s*=\s*(\{.*?\})\s*;?\s*(?:\(function|</script>)`),
	regexp.MustCompile(`(?s)window\.__NUXT__\s*=\s*(\{.*?\})\s*;?\s*</script>`),
}

// Key names per logical field, most preferred first.
var (
	titleKeys    = []string{"bookName", "book_name", "title", "name"}
	authorKeys   = []string{"author", "authorName", "author_name"}
	categoryKeys = []string{"category", "categoryName", "category_name", "tag"}
	chapterKeys  = []string{"lastChapterTitle", "latestChapter", "last_chapter_title", "chapterTitle"}
	heatKeys     = []string{"readCount", "read_count", "hot", "heat", "popularity"}
	bookIDKeys   = []string{"bookId", "book_id", "id"}
	wordKeys     = []string{"wordNumber", "word_count", "wordCount"}
)

const maxJSONDepth = 12

// extractEmbedded returns the first embedded JSON blob in body that parses.
func extractEmbedded(body []byte) (any, bool) {
	for _, re := range embeddedMarkers {
		m := re.FindSubmatch(body)
		if m == nil {
			continue
		}
		var v any
		if err := json.Unmarshal(m[1], &v); err == nil {
			return v, true
		}
	}
	return nil, false
}

// findBooks walks tree depth-first, never deeper than maxJSONDepth, and
// returns the book objects of the ranking list. The list is the array with
// the most direct book children; ties go to the first one walked. When no
// array holds a book, every book object found is returned.
func findBooks(tree any) []map[string]any {
	var all, best []map[string]any
	var walk func(v any, depth int)
	walk = func(v any, depth int) {
		if depth > maxJSONDepth {
			return
		}
		switch t := v.(type) {
		case map[string]any:
			if isBook(t) {
				all = append(all, t)
				return
			}
			for _, k := range sortedKeys(t) {
				walk(t[k], depth+1)
			}
		case []any:
			var books []map[string]any
			for _, e := range t {
				if m, ok := e.(map[string]any); ok && depth < maxJSONDepth && isBook(m) {
					books = append(books, m)
				}
				walk(e, depth+1)
			}
			if len(books) > len(best) {
				best = books
			}
		}
	}
	walk(tree, 0)
	if len(best) > 0 {
		return best
	}
	return all
}

func isBook(m map[string]any) bool {
	return lookupString(m, titleKeys) != "" && hasAnyKey(m, authorKeys)
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// lookupString returns the first non-empty scalar stored under one of keys.
func lookupString(m map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// recordFromJSON maps one embedded book object to a record.
func recordFromJSON(obj map[string]any, bookURL func(id string) string) models.NovelRank {
	rec := models.NovelRank{
		Title:         lookupString(obj, titleKeys),
		Author:        lookupString(obj, authorKeys),
		Category:      lookupString(obj, categoryKeys),
		LatestChapter: lookupString(obj, chapterKeys),
		Extra:         map[string]string{},
	}
	if h := lookupString(obj, heatKeys); h != "" {
		rec.Extra[models.ExtraHeat] = h
	}
	if w := lookupString(obj, wordKeys); w != "" {
		rec.Extra[models.ExtraWordCount] = w
	}
	if id := lookupString(obj, bookIDKeys); id != "" {
		rec.Extra[models.ExtraBookID] = id
		if bookURL != nil {
			rec.BookURL = bookURL(id)
		}
	}
	return rec
}

var (
	plainTitleRe  = regexp.MustCompile(`"bookName"\s*:\s*"(.*?)"`)
	plainAuthorRe = regexp.MustCompile(`"author"\s*:\s*"(.*?)"`)
)

// plainPairs is the last resort: regex over raw markup, zipped by index.
func plainPairs(body []byte) []models.NovelRank {
	titles := plainTitleRe.FindAllSubmatch(body, -1)
	authors := plainAuthorRe.FindAllSubmatch(body, -1)
	out := make([]models.NovelRank, 0, len(titles))
	for i, t := range titles {
		rec := models.NovelRank{Title: unescapeJSONString(t[1])}
		if i < len(authors) {
			rec.Author = unescapeJSONString(authors[i][1])
		}
		out = append(out, rec)
	}
	return out
}

func unescapeJSONString(b []byte) string {
	var s string
	if err := json.Unmarshal([]byte(`"`+string(b)+`"`), &s); err != nil {
		return string(b)
	}
	return s
}

// embeddedTier runs tier 3 against body: structured blob first, then plain
// regex. Records are added to acc.
func embeddedTier(acc *accumulator, body []byte, bookURL func(id string) string) {
	if tree, ok := extractEmbedded(body); ok {
		for i, obj := range findBooks(tree) {
			obj := obj
			acc.try(i, func() (models.NovelRank, error) {
				return recordFromJSON(obj, bookURL), nil
			})
		}
		if len(acc.records) > 0 {
			return
		}
	}
	for _, rec := range plainPairs(body) {
		acc.add(rec)
	}
}
