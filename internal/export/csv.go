package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"novelrank/pkg/models"
)

var csvHeader = []string{
	"date", "source", "source_name", "rank", "title", "author", "category",
	"gender", "period", "latest_chapter", "heat", "word_count", "book_url",
}

// WriteCSV writes one row per record. date is stamped on every row.
func WriteCSV(w io.Writer, date string, records []models.NovelRank) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		r = r.Normalized()
		if err := cw.Write([]string{
			date,
			r.Source,
			r.SourceName,
			strconv.Itoa(r.Rank),
			r.Title,
			r.Author,
			r.Category,
			r.Gender,
			r.Period,
			r.LatestChapter,
			r.Heat(),
			r.Extra[models.ExtraWordCount],
			r.BookURL,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
