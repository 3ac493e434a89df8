// Package rank is the HTTP boundary: live scrapes, stored snapshots,
// aggregations, trend lookups and the refresh schedule.
package rank

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"novelrank/internal/analytics"
	"novelrank/internal/auth"
	"novelrank/internal/feed"
	"novelrank/internal/refresh"
	"novelrank/internal/scheduler"
	"novelrank/internal/scraper"
	"novelrank/internal/snapshot"
	"novelrank/internal/sorter"
	"novelrank/pkg/logger"
	"novelrank/pkg/models"
	"novelrank/pkg/utils"
)

const maxTrendLimit = 365

// Store is the snapshot store as seen by the API.
type Store interface {
	Today() string
	SaveSnapshot(ctx context.Context, source, date string, records []models.NovelRank) error
	LoadSnapshot(ctx context.Context, source, date string) ([]models.NovelRank, error)
	LoadDate(ctx context.Context, date string) ([]models.NovelRank, error)
	ListDates(ctx context.Context) ([]string, error)
	LatestDate(ctx context.Context) (string, error)
	SourcesForDate(ctx context.Context, date string) ([]models.SourceCount, error)
	Trend(ctx context.Context, title, source string, limit int) ([]models.TrendPoint, error)
}

type Refresher interface {
	Run(ctx context.Context, opts refresh.Options) (models.RefreshSummary, error)
}

type Schedule interface {
	Configure(timeOfDay string, enabled bool) error
	Status() scheduler.Status
}

type Publisher interface {
	Publish(ev feed.Event)
}

type Handler struct {
	Store         Store
	Adapters      []scraper.Adapter
	Refresher     Refresher
	Schedule      Schedule
	Feed          Publisher
	Tokens        auth.TokenService
	DefaultSource string
	Now           func() time.Time

	log *zap.Logger
}

func NewHandler(store Store, adapters []scraper.Adapter, log *zap.Logger) *Handler {
	return &Handler{
		Store:         store,
		Adapters:      adapters,
		DefaultSource: scraper.FanqieKey,
		Now:           time.Now,
		log:           logger.OrNop(log).Named("api"),
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sources", h.sources)
	rg.GET("/categories", h.categories)
	rg.GET("/scrape", h.scrape)
	rg.GET("/scrape/all-sources", h.scrapeAllSources)
	rg.GET("/dates", h.dates)
	rg.GET("/latest-date", h.latestDate)
	rg.GET("/snapshots", h.snapshotSources)
	rg.GET("/snapshots/:source", h.snapshot)
	rg.GET("/analytics/categories", h.categoryRanking)
	rg.GET("/analytics/cross-platform", h.crossPlatform)
	rg.GET("/analytics/heat", h.channelHeat)
	rg.GET("/trend", h.trend)
	rg.GET("/schedule", h.schedule)

	admin := rg.Group("")
	admin.Use(auth.AuthMiddleware(h.Tokens))
	admin.PUT("/schedule", h.updateSchedule)
	admin.POST("/refresh", h.refresh)
}

func (h *Handler) adapter(key string) (scraper.Adapter, bool) {
	if key == "" {
		key = h.DefaultSource
	}
	for _, a := range h.Adapters {
		if a.Key() == key {
			return a, true
		}
	}
	return nil, false
}

func (h *Handler) knownSource(key string) bool {
	_, ok := h.adapter(key)
	return ok && key != ""
}

type sourceInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Categories int    `json:"categories"`
}

func (h *Handler) sources(c *gin.Context) {
	out := make([]sourceInfo, 0, len(h.Adapters))
	for _, a := range h.Adapters {
		out = append(out, sourceInfo{ID: a.Key(), Name: a.Name(), Categories: len(a.ListCategories())})
	}
	utils.OK(c, out)
}

func (h *Handler) categories(c *gin.Context) {
	a, ok := h.adapter(c.Query("source"))
	if !ok {
		utils.Fail(c, http.StatusBadRequest, "unknown source: "+c.Query("source"))
		return
	}
	utils.OK(c, a.ListCategories())
}

// scrape runs a live scrape of one source. An unfiltered scrape becomes
// today's snapshot for that source.
func (h *Handler) scrape(c *gin.Context) {
	a, ok := h.adapter(c.Query("source"))
	if !ok {
		utils.Fail(c, http.StatusBadRequest, "unknown source: "+c.Query("source"))
		return
	}
	f := scraper.Filter{
		Gender:     c.Query("gender"),
		Period:     c.Query("period"),
		Categories: splitList(c.Query("category")),
	}

	ctx := c.Request.Context()
	records, err := a.ScrapeAll(ctx, f)
	if err != nil {
		utils.Fail(c, http.StatusServiceUnavailable, "scrape cancelled")
		return
	}

	if f.IsZero() && len(records) > 0 {
		if err := h.Store.SaveSnapshot(ctx, a.Key(), h.Store.Today(), records); err != nil {
			h.log.Error("save scraped snapshot", zap.String("source", a.Key()), zap.Error(err))
			utils.Fail(c, http.StatusInternalServerError, "save snapshot failed")
			return
		}
	}

	utils.OKList(c, sorter.Apply(records, c.DefaultQuery("sort", "rank")))
}

func (h *Handler) scrapeAllSources(c *gin.Context) {
	f := scraper.Filter{Gender: c.Query("gender"), Period: c.Query("period")}
	ctx := c.Request.Context()

	var all []models.NovelRank
	for _, a := range h.Adapters {
		records, err := a.ScrapeAll(ctx, f)
		if err != nil {
			utils.Fail(c, http.StatusServiceUnavailable, "scrape cancelled")
			return
		}
		all = append(all, records...)
	}
	utils.OKList(c, sorter.Apply(all, c.DefaultQuery("sort", "rank")))
}

func (h *Handler) dates(c *gin.Context) {
	dates, err := h.Store.ListDates(c.Request.Context())
	if err != nil {
		h.storeError(c, "list dates", err)
		return
	}
	utils.OKList(c, dates)
}

func (h *Handler) latestDate(c *gin.Context) {
	d, err := h.Store.LatestDate(c.Request.Context())
	if err != nil {
		h.storeError(c, "latest date", err)
		return
	}
	utils.OK(c, d)
}

// resolveDate returns ?date= or the most recent date with data.
func (h *Handler) resolveDate(c *gin.Context) (string, bool) {
	d := strings.TrimSpace(c.Query("date"))
	if d != "" {
		if !validDate(d) {
			utils.Fail(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return "", false
		}
		return d, true
	}
	d, err := h.Store.LatestDate(c.Request.Context())
	if err != nil {
		h.storeError(c, "latest date", err)
		return "", false
	}
	return d, true
}

func (h *Handler) snapshotSources(c *gin.Context) {
	date, ok := h.resolveDate(c)
	if !ok {
		return
	}
	counts, err := h.Store.SourcesForDate(c.Request.Context(), date)
	if err != nil {
		h.storeError(c, "sources for date", err)
		return
	}
	if counts == nil {
		counts = []models.SourceCount{}
	}
	utils.OK(c, gin.H{"date": date, "sources": counts})
}

func (h *Handler) snapshot(c *gin.Context) {
	source := c.Param("source")
	if !h.knownSource(source) {
		utils.Fail(c, http.StatusBadRequest, "unknown source: "+source)
		return
	}
	date, ok := h.resolveDate(c)
	if !ok {
		return
	}

	records, err := h.Store.LoadSnapshot(c.Request.Context(), source, date)
	if err != nil {
		h.storeError(c, "load snapshot", err)
		return
	}
	if g := c.Query("gender"); g != "" {
		records = sorter.FilterByGender(records, g)
	}
	if p := c.Query("period"); p != "" {
		records = sorter.FilterByPeriod(records, p)
	}
	if cats := splitList(c.Query("category")); len(cats) > 0 {
		records = sorter.FilterByCategory(records, cats)
	}
	records = sorter.Apply(records, c.DefaultQuery("sort", "rank"))
	if records == nil {
		records = []models.NovelRank{}
	}

	c.JSON(http.StatusOK, gin.H{
		"code":   utils.CodeOK,
		"date":   date,
		"source": source,
		"data":   records,
		"total":  len(records),
	})
}

func (h *Handler) loadForAnalytics(c *gin.Context) (string, []models.NovelRank, bool) {
	date, ok := h.resolveDate(c)
	if !ok {
		return "", nil, false
	}
	records, err := h.Store.LoadDate(c.Request.Context(), date)
	if err != nil {
		h.storeError(c, "load date", err)
		return "", nil, false
	}
	return date, records, true
}

func (h *Handler) categoryRanking(c *gin.Context) {
	date, records, ok := h.loadForAnalytics(c)
	if !ok {
		return
	}
	items := analytics.CategoryRanking(records)
	if items == nil {
		items = []analytics.CategoryRank{}
	}
	utils.OK(c, gin.H{"date": date, "items": items})
}

func (h *Handler) crossPlatform(c *gin.Context) {
	date, records, ok := h.loadForAnalytics(c)
	if !ok {
		return
	}
	items := analytics.CrossPlatform(records)
	if items == nil {
		items = []analytics.CrossPlatformMatch{}
	}
	utils.OK(c, gin.H{"date": date, "items": items})
}

func (h *Handler) channelHeat(c *gin.Context) {
	date, records, ok := h.loadForAnalytics(c)
	if !ok {
		return
	}
	utils.OK(c, gin.H{"date": date, "channels": analytics.ChannelHeat(records)})
}

func (h *Handler) trend(c *gin.Context) {
	title := strings.TrimSpace(c.Query("title"))
	if title == "" {
		utils.Fail(c, http.StatusBadRequest, "title is required")
		return
	}
	source := c.Query("source")
	if source != "" && !h.knownSource(source) {
		utils.Fail(c, http.StatusBadRequest, "unknown source: "+source)
		return
	}
	limit := parseInt(c.Query("limit"), snapshot.DefaultTrend)
	if limit <= 0 {
		limit = snapshot.DefaultTrend
	}
	if limit > maxTrendLimit {
		limit = maxTrendLimit
	}

	points, err := h.Store.Trend(c.Request.Context(), title, source, limit)
	if err != nil {
		h.storeError(c, "trend", err)
		return
	}
	utils.OKList(c, points)
}

func (h *Handler) schedule(c *gin.Context) {
	if h.Schedule == nil {
		utils.Fail(c, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	utils.OK(c, h.Schedule.Status())
}

type scheduleReq struct {
	Time    string `json:"time"`
	Enabled *bool  `json:"enabled"`
}

func (h *Handler) updateSchedule(c *gin.Context) {
	if h.Schedule == nil {
		utils.Fail(c, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	var req scheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}

	enabled := h.Schedule.Status().Enabled
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if err := h.Schedule.Configure(strings.TrimSpace(req.Time), enabled); err != nil {
		if errors.Is(err, scheduler.ErrInvalidTimeOfDay) {
			utils.Fail(c, http.StatusBadRequest, err.Error())
			return
		}
		utils.Fail(c, http.StatusInternalServerError, "configure failed")
		return
	}

	st := h.Schedule.Status()
	if claims := auth.MustGetClaims(c); claims != nil {
		h.log.Info("schedule updated", zap.String("by", claims.Username),
			zap.String("time", st.Time), zap.Bool("enabled", st.Enabled))
	}
	if h.Feed != nil {
		h.Feed.Publish(feed.Event{Type: feed.EventScheduleUpdated, Schedule: st, At: h.now()})
	}
	utils.OK(c, st)
}

// refresh runs a full refresh synchronously. It keeps going if the client
// disconnects.
func (h *Handler) refresh(c *gin.Context) {
	if h.Refresher == nil {
		utils.Fail(c, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	sources := splitList(c.Query("source"))
	for _, s := range sources {
		if !h.knownSource(s) {
			utils.Fail(c, http.StatusBadRequest, "unknown source: "+s)
			return
		}
	}

	ctx := context.WithoutCancel(c.Request.Context())
	sum, err := h.Refresher.Run(ctx, refresh.Options{
		Sources: sources,
		Force:   parseBool(c.Query("force")),
		Trigger: "api",
	})
	switch {
	case errors.Is(err, refresh.ErrBusy):
		utils.Fail(c, http.StatusConflict, err.Error())
	case err != nil:
		h.log.Error("refresh", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"code": utils.CodeFail, "msg": err.Error(), "data": sum})
	default:
		utils.OK(c, sum)
	}
}

func (h *Handler) storeError(c *gin.Context, op string, err error) {
	h.log.Error(op, zap.Error(err))
	utils.Fail(c, http.StatusInternalServerError, op+" failed")
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func validDate(s string) bool {
	_, err := time.Parse(snapshot.DateLayout, s)
	return err == nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
