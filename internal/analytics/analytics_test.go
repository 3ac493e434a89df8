package analytics

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelrank/pkg/models"
)

func book(title, source, category, gender, heatText string) models.NovelRank {
	return models.NovelRank{
		Rank:     1,
		Title:    title,
		Source:   source,
		Category: category,
		Gender:   gender,
		Extra:    map[string]string{models.ExtraHeat: heatText},
	}
}

func TestAlphaAcrossTwoSources(t *testing.T) {
	records := []models.NovelRank{
		book("Alpha", "X", "C", models.GenderMale, "5万"),
		book("Alpha", "Y", "C", models.GenderMale, "3万"),
	}

	cross := CrossPlatform(records)
	require.Len(t, cross, 1)
	assert.Equal(t, "Alpha", cross[0].Title)
	assert.Equal(t, 2, cross[0].SourceCount)
	assert.Equal(t, []string{"X", "Y"}, cross[0].Sources)

	cats := CategoryRanking(records)
	require.Len(t, cats, 1)
	assert.Equal(t, "C", cats[0].Category)
	assert.InDelta(t, 80000, cats[0].TotalHeat, 1e-9)
	assert.Equal(t, 2, cats[0].BookCount)
}

func TestCategoryRankingTopTenOnly(t *testing.T) {
	var records []models.NovelRank
	for i := 1; i <= 12; i++ {
		records = append(records, book(fmt.Sprintf("b%02d", i), "X", "玄幻", models.GenderMale, fmt.Sprint(i)))
	}
	records = append(records, book("lone", "X", "都市", models.GenderMale, "50"))

	cats := CategoryRanking(records)
	require.Len(t, cats, 2)
	// 3 + 4 + ... + 12
	assert.InDelta(t, 75, cats[0].TotalHeat, 1e-9)
	assert.Equal(t, "玄幻", cats[0].Category)
	assert.Equal(t, 12, cats[0].BookCount)
	assert.Len(t, cats[0].TopBooks, CategoryTopN)
	assert.Equal(t, "b12", cats[0].TopBooks[0].Title)
	assert.Equal(t, "都市", cats[1].Category)
}

func TestCategoryRankingStableUnderPermutation(t *testing.T) {
	var records []models.NovelRank
	cats := []string{"A", "B", "C", ""}
	for i := 0; i < 60; i++ {
		records = append(records, book(fmt.Sprintf("t%d", i), fmt.Sprintf("s%d", i%3), cats[i%4], models.GenderFemale, fmt.Sprintf("%d.5万", i%7)))
	}
	want := CategoryRanking(records)

	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 5; n++ {
		shuffled := append([]models.NovelRank(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, CategoryRanking(shuffled))
	}
	var names []string
	for _, c := range want {
		names = append(names, c.Category)
	}
	assert.Contains(t, names, Uncategorized)
}

func TestCrossPlatformOrderingAndCap(t *testing.T) {
	var records []models.NovelRank
	for i := 0; i < 25; i++ {
		title := fmt.Sprintf("T%02d", i)
		records = append(records, book(title, "X", "c", "", ""), book(title, "Y", "c", "", ""))
	}
	records = append(records,
		book("Wide", "X", "c", "", ""), book("Wide", "Y", "c", "", ""), book("Wide", "Z", "c", "", ""),
		book("Solo", "X", "c", "", ""), book("Solo", "X", "d", "", ""),
	)

	got := CrossPlatform(records)
	require.Len(t, got, CrossPlatformLimit)
	assert.Equal(t, "Wide", got[0].Title)
	assert.Equal(t, 3, got[0].SourceCount)
	assert.Equal(t, "T00", got[1].Title)
	for _, m := range got {
		assert.NotEqual(t, "Solo", m.Title, "same-source repeats are not cross-platform")
	}
}

func TestCrossPlatformEmpty(t *testing.T) {
	assert.Equal(t, []CrossPlatformMatch{}, CrossPlatform(nil))
}

func TestChannelHeat(t *testing.T) {
	var records []models.NovelRank
	for i := 1; i <= 35; i++ {
		records = append(records, book(fmt.Sprintf("m%d", i), "X", "c", models.GenderMale, fmt.Sprintf("%d万", i)))
	}
	records = append(records,
		book("f1", "X", "c", models.GenderFemale, "2万"),
		book("f2", "X", "c", models.GenderFemale, "9000"),
		book("f0", "X", "c", models.GenderFemale, "暂无"),
		book("all", "X", "c", models.GenderAll, "99万"),
	)

	got := ChannelHeat(records)
	require.Len(t, got.Male, ChannelLimit)
	assert.Equal(t, "m35", got.Male[0].Title)
	assert.InDelta(t, 350000, got.Male[0].HeatValue, 1e-9)
	assert.Equal(t, "m6", got.Male[ChannelLimit-1].Title)

	require.Len(t, got.Female, 2)
	assert.Equal(t, []string{"f1", "f2"}, []string{got.Female[0].Title, got.Female[1].Title})
}
