package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelrank/pkg/models"
)

const legacyJSON = `{"novels":[
 {"rank":2,"title":"乙","author":"B","category":"都市","gender":"男频","period":"阅读榜","source":"番茄小说","extra":{"heat":"2万"}},
 {"rank":1,"title":"甲","author":"A","category":"玄幻","gender":"男频","period":"阅读榜","source":"番茄小说","extra":{}}
]}`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestParseLegacyName(t *testing.T) {
	src, date, ok := ParseLegacyName("fanqie_2024-05-01.json")
	assert.True(t, ok)
	assert.Equal(t, "fanqie", src)
	assert.Equal(t, "2024-05-01", date)

	for _, bad := range []string{"fanqie.json", "fanqie_2024-5-1.json", "_2024-05-01.json", "fanqie_2024-05-01.txt"} {
		_, _, ok := ParseLegacyName(bad)
		assert.False(t, ok, bad)
	}
}

func TestImportDirBothLayouts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "2024-05-01", "fanqie.json"), legacyJSON)
	writeFile(t, filepath.Join(dir, "qimao_2024-04-30.json"), legacyJSON)
	writeFile(t, filepath.Join(dir, "2024-05-01", "broken.json"), "{")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	res, err := s.ImportDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 4, res.Records)

	got, err := s.LoadSnapshot(ctx, "fanqie", "2024-05-01")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "甲", got[0].Title)
	assert.Equal(t, "fanqie", got[0].Source)
	assert.Equal(t, "番茄小说", got[0].SourceName)

	dates, err := s.ListDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-01", "2024-04-30"}, dates)
}

func TestImportDirKeepsExistingData(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-01", []models.NovelRank{rec(1, "现有", "")}))

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "fanqie_2024-05-01.json"), legacyJSON)

	res, err := s.ImportDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 1, res.Skipped)

	got, err := s.LoadSnapshot(ctx, "fanqie", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"现有"}, titles(got))
}

func TestImportDirSkipsUntitledEntries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "fanqie_2024-05-02.json"), `{"novels":[
 {"rank":1,"title":"","author":"nobody"},
 {"rank":2,"title":"留下","author":"A"}
]}`)

	res, err := s.ImportDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Records)

	got, err := s.LoadSnapshot(ctx, "fanqie", "2024-05-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"留下"}, titles(got))
}

func TestImportDirMissing(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.ImportDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
