package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve maps request paths (without query) to fixed HTML bodies; anything
// else is a 404.
func serve(t *testing.T, pages map[string]string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testOptions(base string) Options {
	return Options{BaseURL: base}
}

const fanqieContainers = `<html><body><div class="muye-rank-book-list">
<div class="rank-book-item">
  <div class="title"><a href="/page/101">神秘复苏</a></div>
  <a href="/author-page/9">佛前献花</a>
  <a href="/reader/5">最近更新：第100章 归来</a>
  <span class="book-item-count">在读：41.1万</span>
</div>
<div class="rank-book-item"><span>no title here</span></div>
<div class="rank-book-item">
  <div class="title"><a href="https://fanqienovel.com/page/102">第二本</a></div>
</div>
</div></body></html>`

func TestFanqieContainerTier(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/rank/1_2_1141": fanqieContainers})
	s := NewFanqie(testOptions(srv.URL))

	recs, err := s.ScrapeRanking(context.Background(), "1141", "male", "read")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "神秘复苏", first.Title)
	assert.Equal(t, "佛前献花", first.Author)
	assert.Equal(t, "第100章 归来", first.LatestChapter)
	assert.Equal(t, srv.URL+"/page/101", first.BookURL)
	assert.Equal(t, srv.URL+"/author-page/9", first.AuthorURL)
	assert.Equal(t, "在读：41.1万", first.Heat())
	assert.Equal(t, "西方奇幻", first.Category)
	assert.Equal(t, "男频", first.Gender)
	assert.Equal(t, "阅读榜", first.Period)
	assert.Equal(t, FanqieKey, first.Source)
	assert.Equal(t, FanqieName, first.SourceName)

	assert.Equal(t, 2, recs[1].Rank, "malformed container does not consume a rank")
	assert.Equal(t, "", recs[1].Author)
}

func TestFanqieLinkHarvestTier(t *testing.T) {
	page := `<html><body>
<a href="/page/1">书一</a><a href="/page/2">书二</a><a href="/page/3">书三</a>
<a href="/author-page/1">作者一</a><a href="/author-page/2">作者二</a>
</body></html>`
	srv, _ := serve(t, map[string]string{"/rank/0_1_24": page})
	s := NewFanqie(testOptions(srv.URL))

	recs, err := s.ScrapeRanking(context.Background(), "24", "female", "new")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "作者二", recs[1].Author)
	assert.Equal(t, "书三", recs[2].Title)
	assert.Equal(t, "", recs[2].Author)
	assert.Equal(t, "快穿", recs[2].Category)
	assert.Equal(t, "新书榜", recs[2].Period)
	assert.Equal(t, "女频", recs[2].Gender)
}

func TestFanqieFailedPageIsEmpty(t *testing.T) {
	srv, _ := serve(t, nil)
	s := NewFanqie(testOptions(srv.URL))

	recs, err := s.ScrapeRanking(context.Background(), "1141", "male", "read")
	assert.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFanqieScrapeAllSurvivesFailedCategories(t *testing.T) {
	srv, hits := serve(t, map[string]string{"/rank/1_2_1140": fanqieContainers})
	s := NewFanqie(testOptions(srv.URL))

	recs, err := s.ScrapeAll(context.Background(), Filter{Gender: "male", Period: "read"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, int32(len(fanqieMale)), atomic.LoadInt32(hits))
	assert.Equal(t, "东方仙侠", recs[0].Category)
}

func TestFanqieScrapeAllCategoryFilter(t *testing.T) {
	srv, hits := serve(t, map[string]string{"/rank/1_2_1140": fanqieContainers})
	s := NewFanqie(testOptions(srv.URL))

	recs, err := s.ScrapeAll(context.Background(), Filter{Gender: "male", Period: "read", Categories: []string{"东方仙侠"}})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestFanqieCancelledContext(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/rank/1_2_1140": fanqieContainers})
	s := NewFanqie(testOptions(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ScrapeAll(ctx, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}

const qimaoPage = `<html><body><ul>
<li class="rank-list-item">
  <a class="s-book-title" href="/shuku/1000/">大奉打更人</a>
  <span class="s-book-info">
    <a href="/zuozhe/55/">卖报小郎君</a>
    <a href="/shuku/a-202/">玄幻</a>
    <em>380.5万字</em><em>已完结</em>
  </span>
  <span class="s-book-intro">一段简介</span>
  <span class="s-book-update"><a href="/reader/1">最近更新 第九章 终局 2024-01-02 10:11:12</a></span>
  <em class="rank-num">98.5</em><em class="rank-unit">万</em>
</li>
<li class="rank-list-item">
  <a class="s-book-title" href="/shuku/1001/">无作者</a>
</li>
</ul></body></html>`

func TestQimaoRetriesOn405(t *testing.T) {
	var first int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.qimao.com/paihang", r.Header.Get("Referer"))
		switch r.URL.Path {
		case "/paihang/girl/new/":
			atomic.AddInt32(&first, 1)
			w.WriteHeader(http.StatusMethodNotAllowed)
		case "/paihang/girl/new/date/":
			_, _ = w.Write([]byte(qimaoPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewQimao(testOptions(srv.URL))
	recs, err := s.ScrapeRanking(context.Background(), "", "female", "new")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int32(1), first)

	r := recs[0]
	assert.Equal(t, "大奉打更人", r.Title)
	assert.Equal(t, "卖报小郎君", r.Author)
	assert.Equal(t, "玄幻", r.Category)
	assert.Equal(t, "女频", r.Gender)
	assert.Equal(t, "新书榜", r.Period)
	assert.Equal(t, "第九章 终局", r.LatestChapter)
	assert.Equal(t, "98.5万", r.Heat())
	assert.Equal(t, "380.5万字", r.Extra["word_count"])
	assert.Equal(t, "已完结", r.Extra["status"])
	assert.Equal(t, "一段简介", r.Extra["intro"])

	assert.Equal(t, "新书榜", recs[1].Category, "category falls back to the rank name")
	_, hasIntro := recs[1].Extra["intro"]
	assert.False(t, hasIntro)
}

func TestQimaoCategoryID(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/paihang/boy/over/": qimaoPage})
	s := NewQimao(testOptions(srv.URL))

	recs, err := s.ScrapeRanking(context.Background(), "boy_over", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "完结榜", recs[0].Period)
	assert.Equal(t, "男频", recs[0].Gender)
}

const shuqiPage = `<html><body>
<div class="comp-ranks-2">
  <a href="/ranklist?rank=boyClick">更多</a>
  <ul class="cp-ranks-list">
    <li><a href="/book/1.html"><i class="no">1</i><span class="bn">剑来</span><span class="au">烽火戏诸侯</span></a></li>
    <li><a href="/book/2.html"><i class="no">x</i><span class="bn">第二</span></a></li>
    <li><a href="/book/3.html"><i class="no">5</i><span class="bn">第五</span><span class="au">某</span></a></li>
  </ul>
</div>
<div class="comp-ranks-2">
  <a href="/ranklist?rank=girlNew">更多</a>
  <ul class="cp-ranks-list">
    <li><a href="/book/9.html"><span class="bn">新书</span><span class="au">她</span></a></li>
  </ul>
</div>
<div class="comp-ranks-2">
  <a href="/ranklist?rank=mystery">更多</a>
  <ul class="cp-ranks-list"><li><a href="/book/8.html"><span class="bn">忽略</span></a></li></ul>
</div>
</body></html>`

func TestShuqiSections(t *testing.T) {
	srv, hits := serve(t, map[string]string{"/rank": shuqiPage})
	s := NewShuqi(testOptions(srv.URL))

	recs, err := s.ScrapeAll(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	assert.Equal(t, 1, recs[0].Rank)
	assert.Equal(t, "烽火戏诸侯", recs[0].Author)
	assert.Equal(t, srv.URL+"/book/1.html", recs[0].BookURL)
	assert.Equal(t, 2, recs[1].Rank, "unparsable rank falls back to dense numbering")
	assert.Equal(t, 5, recs[2].Rank)
	assert.Equal(t, "点击榜", recs[0].Category)
	assert.Equal(t, "男频", recs[0].Gender)

	assert.Equal(t, "新书", recs[3].Title)
	assert.Equal(t, "女频", recs[3].Gender)
	assert.Equal(t, "新书榜", recs[3].Period)
}

func TestShuqiFilters(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/rank": shuqiPage})
	s := NewShuqi(testOptions(srv.URL))

	recs, err := s.ScrapeAll(context.Background(), Filter{Gender: "female", Period: "new"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "新书", recs[0].Title)

	recs, err = s.ScrapeRanking(context.Background(), "", "male", "read")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

const zonghengPage = `<html><body>
<div class="zh-modules-rank-book">
  <a href="https://www.zongheng.com/detail/1">剑来大陆</a>
  <a href="/show/userInfo/7">作者甲</a>
  <div class="rank-content-default__right-slot"><span>作者甲</span><span>15938</span><span>月票</span></div>
</div>
<div class="zh-modules-rank-book">
  <a href="/detail/2">一</a>
  <a href="/detail/2">长篇之书</a>
  <a href="/show/userInfo/8">作者乙</a>
  <div class="rank-content-default__right-slot">387.9 万字</div>
</div>
<div class="zh-modules-rank-book">
  <a href="/detail/1">剑来大陆</a>
</div>
</body></html>`

func TestZonghengContainers(t *testing.T) {
	var (
		mu    sync.Mutex
		query string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		query = r.URL.RawQuery
		mu.Unlock()
		_, _ = w.Write([]byte(zonghengPage))
	}))
	defer srv.Close()

	s := NewZongheng(testOptions(srv.URL))
	recs, err := s.ScrapeRanking(context.Background(), "1", "", "")
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, "nav=monthly-ticket&rankType=1", query)
	mu.Unlock()

	require.Len(t, recs, 2)
	assert.Equal(t, "剑来大陆", recs[0].Title)
	assert.Equal(t, "作者甲", recs[0].Author)
	assert.Equal(t, "15938月票", recs[0].Heat())
	assert.Equal(t, "月票榜", recs[0].Category)
	assert.Equal(t, "全部", recs[0].Gender)

	assert.Equal(t, "长篇之书", recs[1].Title)
	assert.Equal(t, 2, recs[1].Rank)
	assert.Equal(t, "387.9万字", recs[1].Extra["word_count"])
	assert.Equal(t, "", recs[1].Heat())
}

func TestZonghengLinkFallback(t *testing.T) {
	page := `<html><body><ul>
<li><div><a href="/detail/1">书名一</a></div><a href="/show/userInfo/1">作者一</a></li>
<li><a href="/detail/2">书名二</a><a href="/show/userInfo/2">作者二</a></li>
<li><a href="/detail/2">书名二</a></li>
</ul></body></html>`
	srv, _ := serve(t, map[string]string{"/rank": page})
	s := NewZongheng(testOptions(srv.URL))

	recs, err := s.ScrapeRanking(context.Background(), "", "", "hot")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "作者一", recs[0].Author, "author found through the grandparent")
	assert.Equal(t, "作者二", recs[1].Author)
	assert.Equal(t, "人气榜", recs[0].Period)
}

func TestZonghengScrapeAllDefaultLists(t *testing.T) {
	var (
		mu   sync.Mutex
		navs []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		navs = append(navs, r.URL.Query().Get("nav"))
		mu.Unlock()
		_, _ = w.Write([]byte(zonghengPage))
	}))
	defer srv.Close()

	s := NewZongheng(testOptions(srv.URL))
	recs, err := s.ScrapeAll(context.Background(), Filter{})
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, []string{"default", "new-book", "click", "end"}, navs)
	mu.Unlock()
	assert.Len(t, recs, 8)
}
