// Package export renders records for people: console tables and chat
// webhook notifications.
package export

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"novelrank/internal/sorter"
	"novelrank/pkg/models"
)

// Group modes for Console.
const (
	GroupNone     = "none"
	GroupCategory = "category"
	GroupGender   = "gender"
)

const chapterWidth = 30

var header = []string{"排名", "书名", "作者", "分类", "频道", "榜单", "最新章节", "来源"}

// Console writes record tables to W.
type Console struct {
	W io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{W: w}
}

// Export prints records flat or grouped by category or gender.
func (c *Console) Export(records []models.NovelRank, groupBy string) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(c.W, "没有抓取到任何数据")
		return err
	}

	var groups []sorter.Group
	switch groupBy {
	case GroupCategory:
		groups = sorter.GroupByCategory(records)
	case GroupGender:
		groups = sorter.GroupByGender(records)
	default:
		return c.table(fmt.Sprintf("小说排行榜 (共%d本)", len(records)), records)
	}

	for _, g := range groups {
		if err := c.table(fmt.Sprintf("%s (共%d本)", g.Key, len(g.Records)), g.Records); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(c.W); err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) table(title string, records []models.NovelRank) error {
	if _, err := fmt.Fprintln(c.W, title); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.W, 0, 4, 2, ' ', 0)
	writeRow(tw, header)
	for _, r := range records {
		writeRow(tw, []string{
			strconv.Itoa(r.Rank),
			r.Title,
			r.Author,
			r.Category,
			r.Gender,
			r.Period,
			Truncate(r.LatestChapter, chapterWidth),
			r.Source,
		})
	}
	return tw.Flush()
}

func writeRow(w io.Writer, cols []string) {
	for i, col := range cols {
		if i > 0 {
			_, _ = io.WriteString(w, "\t")
		}
		_, _ = io.WriteString(w, col)
	}
	_, _ = io.WriteString(w, "\n")
}

// Truncate shortens s to n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
