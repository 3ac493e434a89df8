package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelrank/pkg/database"
	"novelrank/pkg/models"
)

var shanghai = time.FixedZone("CST", 8*60*60)

// setupTestStore opens a migrated SQLite file in a temp dir with the clock
// fixed at 2024-05-20 10:00 CST.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenAndMigrate(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewStore(db, shanghai, nil)
	s.Now = func() time.Time { return time.Date(2024, 5, 20, 10, 0, 0, 0, shanghai) }
	return s
}

func rec(rank int, title, heatText string) models.NovelRank {
	r := models.NovelRank{Rank: rank, Title: title, Author: "a-" + title, Category: "玄幻", Source: "fanqie", SourceName: "番茄小说"}
	if heatText != "" {
		r.Extra = map[string]string{models.ExtraHeat: heatText}
	}
	return r
}

func titles(recs []models.NovelRank) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

func TestSaveLoadOrdersByRank(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	in := []models.NovelRank{rec(3, "C", ""), rec(1, "A", "5万"), rec(2, "B", "")}
	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-20", in))

	got, err := s.LoadSnapshot(ctx, "fanqie", "2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, titles(got))
	assert.Equal(t, "5万", got[0].Heat())
	assert.Equal(t, "a-A", got[0].Author)
	assert.Equal(t, "番茄小说", got[0].SourceName)
	assert.NotNil(t, got[1].Extra)
}

func TestSaveReplacesWithoutResidue(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-20",
		[]models.NovelRank{rec(1, "Old1", ""), rec(2, "Old2", ""), rec(3, "Old3", "")}))
	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-20",
		[]models.NovelRank{rec(1, "New1", "")}))

	got, err := s.LoadSnapshot(ctx, "fanqie", "2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"New1"}, titles(got))
}

func TestSaveIsolatedPerKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-19", []models.NovelRank{rec(1, "Yesterday", "")}))
	require.NoError(t, s.SaveSnapshot(ctx, "qimao", "2024-05-20", []models.NovelRank{rec(1, "Other", "")}))
	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-20", []models.NovelRank{rec(1, "Today", "")}))

	got, err := s.LoadSnapshot(ctx, "fanqie", "2024-05-19")
	require.NoError(t, err)
	assert.Equal(t, []string{"Yesterday"}, titles(got))

	got, err = s.LoadSnapshot(ctx, "qimao", "2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"Other"}, titles(got))
}

func TestHasSnapshot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ok, err := s.HasSnapshot(ctx, "fanqie", "2024-05-20")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-20", []models.NovelRank{rec(1, "A", "")}))

	ok, err = s.HasSnapshot(ctx, "fanqie", "2024-05-20")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMissingSnapshotIsEmpty(t *testing.T) {
	s := setupTestStore(t)
	got, err := s.LoadSnapshot(context.Background(), "zongheng", "2020-01-01")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmptyStoreDates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	dates, err := s.ListDates(ctx)
	require.NoError(t, err)
	assert.Empty(t, dates)

	latest, err := s.LatestDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-20", latest)
}

func TestLatestDate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-17", []models.NovelRank{rec(1, "A", "")}))
	require.NoError(t, s.SaveSnapshot(ctx, "qimao", "2024-05-18", []models.NovelRank{rec(1, "A", "")}))

	latest, err := s.LatestDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-18", latest)

	require.NoError(t, s.SaveSnapshot(ctx, "shuqi", "2024-05-20", []models.NovelRank{rec(1, "A", "")}))
	latest, err = s.LatestDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-20", latest)

	dates, err := s.ListDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-20", "2024-05-18", "2024-05-17"}, dates)
}

func TestTodayUsesStoreTimezone(t *testing.T) {
	s := setupTestStore(t)
	// 2024-05-19 17:30 UTC is already 05-20 in UTC+8
	s.Now = func() time.Time { return time.Date(2024, 5, 19, 17, 30, 0, 0, time.UTC) }
	assert.Equal(t, "2024-05-20", s.Today())
}

func TestTrend(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i, d := range []string{"2024-05-16", "2024-05-17", "2024-05-18"} {
		require.NoError(t, s.SaveSnapshot(ctx, "fanqie", d, []models.NovelRank{rec(i+1, "Alpha", "4.5万")}))
	}
	q := rec(7, "Alpha", "")
	q.Source, q.SourceName = "qimao", "七猫小说"
	require.NoError(t, s.SaveSnapshot(ctx, "qimao", "2024-05-18", []models.NovelRank{q}))

	points, err := s.Trend(ctx, "Alpha", "", 0)
	require.NoError(t, err)
	require.Len(t, points, 4)
	assert.Equal(t, "2024-05-18", points[0].Date)
	assert.Equal(t, "fanqie", points[0].Source)
	assert.Equal(t, "qimao", points[1].Source)
	assert.Equal(t, "2024-05-16", points[3].Date)
	assert.InDelta(t, 45000, points[0].HeatValue, 1e-9)
	assert.InDelta(t, 0, points[1].HeatValue, 1e-9)

	points, err = s.Trend(ctx, "Alpha", "fanqie", 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, []string{"2024-05-18", "2024-05-17"}, []string{points[0].Date, points[1].Date})
	assert.Equal(t, 3, points[0].Rank)

	points, err = s.Trend(ctx, "Nope", "", 10)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestLoadDateAndSourcesForDate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-20", []models.NovelRank{rec(1, "A", ""), rec(2, "B", "")}))
	q := rec(1, "C", "")
	q.SourceName = ""
	require.NoError(t, s.SaveSnapshot(ctx, "qimao", "2024-05-20", []models.NovelRank{q}))

	all, err := s.LoadDate(ctx, "2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, titles(all))

	counts, err := s.SourcesForDate(ctx, "2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, []models.SourceCount{
		{Source: "fanqie", SourceName: "番茄小说", Count: 2},
		{Source: "qimao", SourceName: "qimao", Count: 1},
	}, counts)
}

func TestImportIfAbsent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	wrote, err := s.ImportIfAbsent(ctx, "fanqie", "2024-05-01", []models.NovelRank{rec(1, "First", "")})
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.ImportIfAbsent(ctx, "fanqie", "2024-05-01", []models.NovelRank{rec(1, "Second", "")})
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := s.LoadSnapshot(ctx, "fanqie", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"First"}, titles(got))
}

func TestSaveDropsUntitledRecords(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	in := []models.NovelRank{rec(1, "", ""), rec(2, "ok", ""), rec(3, "  ", "")}
	require.NoError(t, s.SaveSnapshot(ctx, "fanqie", "2024-05-20", in))

	got, err := s.LoadSnapshot(ctx, "fanqie", "2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, titles(got))
}

func TestImportIfAbsentUntitledOnly(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	wrote, err := s.ImportIfAbsent(ctx, "fanqie", "2024-05-01", []models.NovelRank{rec(1, "", "")})
	require.NoError(t, err)
	assert.False(t, wrote)

	ok, err := s.HasSnapshot(ctx, "fanqie", "2024-05-01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveFailsOnClosedDB(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.DB.Close())

	err := s.SaveSnapshot(context.Background(), "fanqie", "2024-05-20", []models.NovelRank{rec(1, "A", "")})
	assert.Error(t, err)
}
