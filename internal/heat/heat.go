// Package heat turns the free-text popularity figures shown by ranking sites
// ("在读：41.1万", "92000 热度") into comparable numbers.
package heat

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit is the ×10,000 scale suffix.
const Unit = "万"

var leadingNumber = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(万)?`)

// Parse returns the numeric heat in text. Everything before the first ASCII
// digit is ignored; a trailing 万 multiplies by 10,000. Text without a digit
// yields 0.
func Parse(text string) float64 {
	i := strings.IndexFunc(text, func(r rune) bool { return r >= '0' && r <= '9' })
	if i < 0 {
		return 0
	}
	m := leadingNumber.FindStringSubmatch(text[i:])
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if m[2] == Unit {
		v *= 10000
	}
	return v
}

// Format renders a heat value the way the sites do: values of 10,000 and
// above as "N.N万".
func Format(v float64) string {
	if v >= 10000 {
		return strconv.FormatFloat(v/10000, 'f', 1, 64) + Unit
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
