package scraper

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"novelrank/pkg/logger"
	"novelrank/pkg/models"
)

// Adapter is implemented by each ranking site. Each adapter fetches its own
// page format and maps it into models.NovelRank.
//
// Transport and parse failures are logged and produce an empty result for the
// affected list; the only error an adapter returns is context cancellation.
type Adapter interface {
	Key() string
	Name() string
	ListCategories() []models.Category
	ScrapeRanking(ctx context.Context, categoryID, gender, period string) ([]models.NovelRank, error)
	ScrapeAll(ctx context.Context, f Filter) ([]models.NovelRank, error)
}

// Filter narrows ScrapeAll. Empty fields mean "all".
type Filter struct {
	Gender     string   // "male" / "female"
	Period     string   // adapter period key, e.g. "read", "new"
	Categories []string // category names or ids
}

// IsZero reports whether f selects everything.
func (f Filter) IsZero() bool {
	return f.Gender == "" && f.Period == "" && len(f.Categories) == 0
}

func (f Filter) wantsCategory(c models.Category) bool {
	if len(f.Categories) == 0 {
		return true
	}
	for _, want := range f.Categories {
		if want == c.ID || want == c.Name {
			return true
		}
	}
	return false
}

func (f Filter) wantsGender(g string) bool {
	return f.Gender == "" || f.Gender == g
}

// Options configures the shared fetch behaviour of an adapter.
type Options struct {
	Client    *http.Client
	Timeout   time.Duration
	Delay     time.Duration // minimum gap between two fetches of one adapter
	UserAgent string
	BaseURL   string // overrides the site root, used by tests
	Logger    *zap.Logger
}

const (
	DefaultTimeout   = 15 * time.Second
	DefaultDelay     = time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

func (o Options) withDefaults(baseURL, logName string) Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	o.Logger = logger.OrNop(o.Logger).Named(logName)
	return o
}
