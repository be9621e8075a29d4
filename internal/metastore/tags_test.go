// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTagName(t *testing.T) {
	cases := map[string]string{
		"  Go Lang  ":  "Go_Lang",
		"#golang!":     "golang",
		"multi   word": "multi_word",
		"___":          "___",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeTagName(in), in)
	}
}

func TestTagStore_GetOrCreate_InternsOnce(t *testing.T) {
	store := openTestStore(t)

	tags, err := store.Tags.GetOrCreate([]string{"golang", "Golang", "  golang  ", ""}, TagTypeLLM)
	require.NoError(t, err)
	require.Len(t, tags, 2, "duplicate/empty names collapse; case is preserved, so golang and Golang stay distinct")
	assert.Equal(t, "golang", tags[0].Name)
	assert.Equal(t, "Golang", tags[1].Name)

	again, err := store.Tags.GetOrCreate([]string{"golang"}, TagTypeLLM)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, tags[0].ID, again[0].ID, "re-interning an existing name returns the same id")
}

func TestTagStore_SearchByTagNames_ANDandOR(t *testing.T) {
	store := openTestStore(t)

	tags, err := store.Tags.GetOrCreate([]string{"go", "sql"}, TagTypeLLM)
	require.NoError(t, err)
	goTag, sqlTag := tags[0], tags[1]

	now := time.Now()
	f1, err := store.Screening.UpsertScreening(&FileScreening{
		FilePath: "/docs/a.md", FileName: "a.md", FileHash: "h1",
		CreatedTime: now, ModifiedTime: now, MatchedRules: "[]", ExtraMetadata: "{}",
	})
	require.NoError(t, err)
	f2, err := store.Screening.UpsertScreening(&FileScreening{
		FilePath: "/docs/b.md", FileName: "b.md", FileHash: "h2",
		CreatedTime: now, ModifiedTime: now, MatchedRules: "[]", ExtraMetadata: "{}",
	})
	require.NoError(t, err)

	require.NoError(t, store.Tags.LinkTags(f1, []int64{goTag.ID, sqlTag.ID}))
	require.NoError(t, store.Tags.LinkTags(f2, []int64{goTag.ID}))

	orMatches, err := store.Tags.SearchByTagNames([]string{"go", "sql"}, "OR")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{f1, f2}, orMatches)

	andMatches, err := store.Tags.SearchByTagNames([]string{"go", "sql"}, "AND")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{f1}, andMatches)

	// Lowercase/mixed-case operator strings behave the same (the store
	// upper-cases internally).
	orLower, err := store.Tags.SearchByTagNames([]string{"go", "sql"}, "or")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{f1, f2}, orLower)
}

func TestTagStore_SearchByTagNames_UnknownNameIgnored(t *testing.T) {
	store := openTestStore(t)
	matches, err := store.Tags.SearchByTagNames([]string{"never-created"}, "AND")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTagStore_TagCloud_SortedByWeightDescending(t *testing.T) {
	store := openTestStore(t)

	tags, err := store.Tags.GetOrCreate([]string{"popular", "rare"}, TagTypeLLM)
	require.NoError(t, err)
	popular, rare := tags[0], tags[1]

	now := time.Now()
	for i := 0; i < 3; i++ {
		id, err := store.Screening.UpsertScreening(&FileScreening{
			FilePath: "/docs/f.md", FileName: "f.md", FileHash: "h" + string(rune('a'+i)),
			CreatedTime: now, ModifiedTime: now, MatchedRules: "[]", ExtraMetadata: "{}",
		})
		require.NoError(t, err)
		tagIDs := []int64{popular.ID}
		if i == 0 {
			tagIDs = append(tagIDs, rare.ID)
		}
		require.NoError(t, store.Tags.LinkTags(id, tagIDs))
	}

	cloud, err := store.Tags.TagCloud(0, 0)
	require.NoError(t, err)
	require.Len(t, cloud, 2)
	assert.Equal(t, "popular", cloud[0].Tag.Name)
	assert.Equal(t, 3, cloud[0].Weight)
	assert.Equal(t, "rare", cloud[1].Tag.Name)
	assert.Equal(t, 1, cloud[1].Weight)
}

func TestTagStore_TagCloud_MinWeightFilters(t *testing.T) {
	store := openTestStore(t)
	tags, err := store.Tags.GetOrCreate([]string{"alone"}, TagTypeLLM)
	require.NoError(t, err)

	now := time.Now()
	id, err := store.Screening.UpsertScreening(&FileScreening{
		FilePath: "/docs/g.md", FileName: "g.md", FileHash: "hg",
		CreatedTime: now, ModifiedTime: now, MatchedRules: "[]", ExtraMetadata: "{}",
	})
	require.NoError(t, err)
	require.NoError(t, store.Tags.LinkTags(id, []int64{tags[0].ID}))

	cloud, err := store.Tags.TagCloud(0, 2)
	require.NoError(t, err)
	assert.Empty(t, cloud, "weight-1 tag excluded by min_weight=2")
}
