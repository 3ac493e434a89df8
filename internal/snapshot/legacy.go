package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"novelrank/pkg/models"
)

type legacyFile struct {
	Novels []models.NovelRank `json:"novels"`
}

// ImportResult counts what ImportDir did.
type ImportResult struct {
	Files    int // snapshot files found
	Imported int // snapshots written
	Skipped  int // keys that already had data, or empty files
	Records  int // records written
}

// ImportDir migrates legacy JSON snapshots from dir. Two layouts are
// recognised: dir/YYYY-MM-DD/<source>.json and dir/<source>_YYYY-MM-DD.json.
// Keys that already have data are left alone. Unreadable files are logged
// and skipped.
func (s *Store) ImportDir(ctx context.Context, dir string) (ImportResult, error) {
	var res ImportResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", dir, err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if !isDate(name) {
				continue
			}
			files, err := os.ReadDir(filepath.Join(dir, name))
			if err != nil {
				return res, fmt.Errorf("read %s: %w", name, err)
			}
			for _, f := range files {
				if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
					continue
				}
				source := strings.TrimSuffix(f.Name(), ".json")
				if err := s.importFile(ctx, filepath.Join(dir, name, f.Name()), source, name, &res); err != nil {
					return res, err
				}
			}
			continue
		}

		source, date, ok := ParseLegacyName(name)
		if !ok {
			continue
		}
		if err := s.importFile(ctx, filepath.Join(dir, name), source, date, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ParseLegacyName splits "<source>_YYYY-MM-DD.json".
func ParseLegacyName(name string) (source, date string, ok bool) {
	if !strings.HasSuffix(name, ".json") {
		return "", "", false
	}
	base := strings.TrimSuffix(name, ".json")
	i := strings.LastIndex(base, "_")
	if i <= 0 {
		return "", "", false
	}
	source, date = base[:i], base[i+1:]
	if !isDate(date) {
		return "", "", false
	}
	return source, date, true
}

func isDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

func (s *Store) importFile(ctx context.Context, path, source, date string, res *ImportResult) error {
	res.Files++
	log := s.log.With(zap.String("file", path))

	b, err := os.ReadFile(path)
	if err != nil {
		log.Warn("read legacy file", zap.Error(err))
		res.Skipped++
		return nil
	}
	var lf legacyFile
	if err := json.Unmarshal(b, &lf); err != nil {
		log.Warn("decode legacy file", zap.Error(err))
		res.Skipped++
		return nil
	}
	// legacy files carry the display name in "source"
	for i := range lf.Novels {
		n := &lf.Novels[i]
		if n.Source != source {
			if n.SourceName == "" {
				n.SourceName = n.Source
			}
			n.Source = source
		}
	}

	novels := withTitles(lf.Novels)
	wrote, err := s.ImportIfAbsent(ctx, source, date, novels)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	if !wrote {
		res.Skipped++
		return nil
	}
	res.Imported++
	res.Records += len(novels)
	log.Info("imported", zap.String("source", source), zap.String("date", date), zap.Int("records", len(novels)))
	return nil
}
