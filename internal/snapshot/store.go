// Package snapshot persists one ranking snapshot per (source, date) in SQLite.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"novelrank/internal/heat"
	"novelrank/pkg/logger"
	"novelrank/pkg/models"
)

const (
	DateLayout   = "2006-01-02"
	DefaultTrend = 30
)

// Store reads and writes snapshots. A save for an existing (source, date)
// replaces the old rows inside one transaction; rows are never merged.
type Store struct {
	DB  *sql.DB
	Loc *time.Location   // timezone that defines "today"
	Now func() time.Time // overridable clock
	log *zap.Logger
}

func NewStore(db *sql.DB, loc *time.Location, log *zap.Logger) *Store {
	if loc == nil {
		loc = time.FixedZone("CST", 8*60*60)
	}
	return &Store{DB: db, Loc: loc, Now: time.Now, log: logger.OrNop(log).Named("snapshot")}
}

// Today is the current date in the store's timezone.
func (s *Store) Today() string {
	return s.Now().In(s.Loc).Format(DateLayout)
}

func (s *Store) HasSnapshot(ctx context.Context, source, date string) (bool, error) {
	n, err := s.Count(ctx, source, date)
	return n > 0, err
}

// Count returns the number of stored records for (source, date).
func (s *Store) Count(ctx context.Context, source, date string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM novel_ranks WHERE source = ? AND date = ?`, source, date).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s/%s: %w", source, date, err)
	}
	return n, nil
}

// SaveSnapshot replaces the snapshot for (source, date) with records.
// heat_value is derived from each record's heat text.
func (s *Store) SaveSnapshot(ctx context.Context, source, date string, records []models.NovelRank) error {
	records = withTitles(records)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM novel_ranks WHERE source = ? AND date = ?`, source, date); err != nil {
		return fmt.Errorf("delete %s/%s: %w", source, date, err)
	}

	if err := insertRecords(ctx, tx, source, date, records, s.Now()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.log.Info("snapshot saved", zap.String("source", source), zap.String("date", date), zap.Int("records", len(records)))
	return nil
}

// ImportIfAbsent writes records only when (source, date) has no data yet.
// It reports whether anything was written.
func (s *Store) ImportIfAbsent(ctx context.Context, source, date string, records []models.NovelRank) (bool, error) {
	records = withTitles(records)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM novel_ranks WHERE source = ? AND date = ?`, source, date).Scan(&n); err != nil {
		return false, fmt.Errorf("count %s/%s: %w", source, date, err)
	}
	if n > 0 || len(records) == 0 {
		return false, nil
	}
	if err := insertRecords(ctx, tx, source, date, records, s.Now()); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

// withTitles drops records without a title; a title is required.
func withTitles(records []models.NovelRank) []models.NovelRank {
	out := make([]models.NovelRank, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.Title) != "" {
			out = append(out, r)
		}
	}
	return out
}

func insertRecords(ctx context.Context, tx *sql.Tx, source, date string, records []models.NovelRank, now time.Time) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO novel_ranks
		  (date, source, source_name, rank, title, author, category, gender, period,
		   book_url, heat, heat_value, raw_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	createdAt := now.Format(time.RFC3339)
	for _, r := range records {
		r = r.Normalized()
		if r.Source == "" {
			r.Source = source
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal %q: %w", r.Title, err)
		}
		name := r.SourceName
		if name == "" {
			name = source
		}
		h := r.Heat()
		if _, err := stmt.ExecContext(ctx,
			date, source, name, r.Rank, r.Title, r.Author, r.Category, r.Gender, r.Period,
			r.BookURL, h, heat.Parse(h), string(raw), createdAt,
		); err != nil {
			return fmt.Errorf("insert %q: %w", r.Title, err)
		}
	}
	return nil
}

const recordColumns = `source, source_name, rank, title, author, category, gender, period, book_url, heat, raw_json`

func scanRecords(rows *sql.Rows) ([]models.NovelRank, error) {
	var out []models.NovelRank
	for rows.Next() {
		var (
			r   models.NovelRank
			h   string
			raw string
		)
		if err := rows.Scan(&r.Source, &r.SourceName, &r.Rank, &r.Title, &r.Author, &r.Category,
			&r.Gender, &r.Period, &r.BookURL, &h, &raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var full models.NovelRank
		if err := json.Unmarshal([]byte(raw), &full); err == nil && full.Title != "" {
			r = full
		} else if h != "" {
			r.Extra = map[string]string{models.ExtraHeat: h}
		}
		out = append(out, r.Normalized())
	}
	return out, rows.Err()
}

// LoadSnapshot returns the records of (source, date) ordered by rank. A
// missing snapshot is an empty result, not an error.
func (s *Store) LoadSnapshot(ctx context.Context, source, date string) ([]models.NovelRank, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM novel_ranks
		WHERE source = ? AND date = ?
		ORDER BY rank ASC, id ASC
	`, source, date)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", source, date, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// LoadDate returns every source's records for date, grouped by source in
// the order they were scraped.
func (s *Store) LoadDate(ctx context.Context, date string) ([]models.NovelRank, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM novel_ranks
		WHERE date = ?
		ORDER BY source ASC, id ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("load date %s: %w", date, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListDates returns every date with data, newest first.
func (s *Store) ListDates(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT date FROM novel_ranks ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// LatestDate prefers today when any source has data for it, then the newest
// stored date. An empty store yields today.
func (s *Store) LatestDate(ctx context.Context) (string, error) {
	today := s.Today()
	var latest sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT CASE
		  WHEN EXISTS (SELECT 1 FROM novel_ranks WHERE date = ?) THEN ?
		  ELSE (SELECT MAX(date) FROM novel_ranks)
		END
	`, today, today).Scan(&latest)
	if err != nil {
		return "", fmt.Errorf("latest date: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return today, nil
	}
	return latest.String, nil
}

// SourcesForDate returns per-source record counts for date.
func (s *Store) SourcesForDate(ctx context.Context, date string) ([]models.SourceCount, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT source, MAX(source_name), COUNT(*)
		FROM novel_ranks
		WHERE date = ?
		GROUP BY source
		ORDER BY source
	`, date)
	if err != nil {
		return nil, fmt.Errorf("sources for %s: %w", date, err)
	}
	defer rows.Close()

	out := []models.SourceCount{}
	for rows.Next() {
		var c models.SourceCount
		if err := rows.Scan(&c.Source, &c.SourceName, &c.Count); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Trend returns the stored history of title, newest date first. An empty
// source matches every source; limit <= 0 means DefaultTrend.
func (s *Store) Trend(ctx context.Context, title, source string, limit int) ([]models.TrendPoint, error) {
	if limit <= 0 {
		limit = DefaultTrend
	}
	query := `
		SELECT date, source, source_name, rank, heat, heat_value, category, gender, period, book_url
		FROM novel_ranks
		WHERE title = ?`
	args := []any{title}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY date DESC, source ASC, rank ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trend %q: %w", title, err)
	}
	defer rows.Close()

	out := []models.TrendPoint{}
	for rows.Next() {
		var p models.TrendPoint
		var bookURL sql.NullString
		var h sql.NullString
		if err := rows.Scan(&p.Date, &p.Source, &p.SourceName, &p.Rank, &h, &p.HeatValue,
			&p.Category, &p.Gender, &p.Period, &bookURL); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		p.Heat = h.String
		p.BookURL = bookURL.String
		out = append(out, p)
	}
	return out, rows.Err()
}
