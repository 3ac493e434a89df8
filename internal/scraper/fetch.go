package scraper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 8 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.Code)
}

// fetcher performs rate limited GET requests and decodes bodies to UTF-8.
type fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       *zap.Logger
}

func newFetcher(o Options) *fetcher {
	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	limit := rate.Inf
	if o.Delay > 0 {
		limit = rate.Every(o.Delay)
	}
	return &fetcher{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: o.UserAgent,
		log:       o.Logger,
	}
}

// Get waits for the politeness limiter, then fetches url. The extra headers
// are added on top of the default browser-like set.
func (f *fetcher) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	bodyReader := bufio.NewReader(io.LimitReader(resp.Body, maxBodyBytes))
	e := determineEncoding(bodyReader, resp.Header.Get("Content-Type"))
	return io.ReadAll(transform.NewReader(bodyReader, e.NewDecoder()))
}

// page fetches url and turns every failure except cancellation into a nil
// body with a warning. Callers treat a nil body as an empty result.
func (f *fetcher) page(ctx context.Context, url string, header http.Header) ([]byte, error) {
	body, err := f.Get(ctx, url, header)
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.log.Warn("fetch failed", zap.String("url", url), zap.Error(err))
	return nil, nil
}

func determineEncoding(r *bufio.Reader, contentType string) encoding.Encoding {
	b, err := r.Peek(1024)
	if err != nil && len(b) == 0 {
		return unicode.UTF8
	}
	e, _, _ := charset.DetermineEncoding(b, contentType)
	return e
}
