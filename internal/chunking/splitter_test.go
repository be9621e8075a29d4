// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_ShortText(t *testing.T) {
	s := NewSplitter()
	text := "This is a short text that should not be split."

	chunks := s.Split(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitter_EmptyText(t *testing.T) {
	s := NewSplitter()
	assert.Empty(t, s.Split(""))
}

func TestSplitter_LongTextProducesMultipleChunks(t *testing.T) {
	s := NewSplitter()
	paragraph := "This is a sample paragraph. It contains multiple sentences. Each sentence ends with a period. "
	text := strings.Repeat(paragraph, 80) // well past the 512-token budget

	chunks := s.Split(text)

	require.Greater(t, len(chunks), 1)
	tok := Tokenizer{}
	for _, c := range chunks {
		assert.LessOrEqual(t, tok.CountTokens(c), maxTokensPerChunk+boundarySearchTokens)
	}
}

func TestSplitter_OverlapBetweenConsecutiveChunks(t *testing.T) {
	s := NewSplitter()
	part1 := strings.Repeat("A", 3000) + ". "
	part2 := strings.Repeat("B", 3000) + ". "
	text := part1 + part2

	chunks := s.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.NotEqual(t, chunks[0], chunks[1])
	overlap := Tokenizer{}.EstimateChars(overlapTokens)
	assert.Equal(t, chunks[0][len(chunks[0])-overlap:], chunks[1][:overlap])
}

func TestTokenizer_CountTokens_ASCII(t *testing.T) {
	tok := Tokenizer{}
	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Equal(t, 1, tok.CountTokens("hi"))
	assert.Greater(t, tok.CountTokens(strings.Repeat("word ", 100)), 50)
}

func TestTokenizer_CountTokens_CJKCountsPerRune(t *testing.T) {
	tok := Tokenizer{}
	cjk := strings.Repeat("你", 10)
	// CJK text is estimated near one token per rune, well above what the
	// same byte length of ASCII would estimate.
	assert.GreaterOrEqual(t, tok.CountTokens(cjk), 10)
}

func TestTokenizer_EstimateCharsRoundTrips(t *testing.T) {
	tok := Tokenizer{}
	chars := tok.EstimateChars(512)
	assert.Equal(t, int(512*charsPerToken), chars)
}
