package scraper

import (
	"net/url"
	"strings"
)

const (
	puaFirst = '\uE000'
	puaLast  = '\uF8FF'
)

// StripPUA removes characters in the Unicode Private Use Area
// (U+E000..U+F8FF). Sites substitute glyphs there via custom web fonts, so the
// raw characters carry no meaning outside the browser.
func StripPUA(s string) string {
	if strings.IndexFunc(s, isPUA) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isPUA(r) {
			return -1
		}
		return r
	}, s)
}

func isPUA(r rune) bool {
	return r >= puaFirst && r <= puaLast
}

// Clean strips PUA characters, collapses runs of whitespace and trims.
func Clean(s string) string {
	return strings.Join(strings.Fields(StripPUA(s)), " ")
}

// absURL resolves href against base. Empty href stays empty.
func absURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	b, err := url.Parse(base)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
	}
	return b.ResolveReference(ref).String()
}
