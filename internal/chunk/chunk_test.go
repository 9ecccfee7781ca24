package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkPlain_SingleParagraphBelowTarget(t *testing.T) {
	units := Chunk("alpha beta gamma", Options{Format: FormatPlain, Target: 2000, Overlap: 200})
	require.Len(t, units, 1)
	assert.Equal(t, "alpha beta gamma", units[0].Text)
}

func TestChunkPlain_NeverSplitsInsideParagraph(t *testing.T) {
	big := strings.Repeat("word ", 100) // single paragraph, no blank lines
	units := Chunk(big, Options{Format: FormatPlain, Target: 50, Overlap: 10})
	require.Len(t, units, 1)
	assert.Equal(t, strings.TrimSpace(big), units[0].Text)
}

func TestChunkPlain_OverlapCarriesForward(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40) + "\n\n" + strings.Repeat("c", 40)
	units := Chunk(text, Options{Format: FormatPlain, Target: 50, Overlap: 10})
	require.GreaterOrEqual(t, len(units), 2)
	// second chunk starts with the overlap tail of the first
	assert.True(t, strings.HasPrefix(units[1].Text, lastRunes(units[0].Text, 10)))
}

func TestChunkPlain_NeverEmitsEmptyChunk(t *testing.T) {
	units := Chunk("   \n\n  \n", Options{})
	assert.Empty(t, units)
}

func TestChunkMarkdown_HeadingForcesBoundary(t *testing.T) {
	text := "intro paragraph\n\n# Section One\n\nbody one\n\n## Section Two\n\nbody two"
	units := Chunk(text, Options{Format: FormatMarkdown, Target: 2000, Overlap: 0})
	require.Len(t, units, 3)
	assert.Nil(t, units[0].Metadata)
	assert.Equal(t, "Section One", units[1].Metadata["section"])
	assert.Equal(t, "Section Two", units[2].Metadata["section"])
}

func TestChunkMarkdown_HeadingBelongsToFollowingChunk(t *testing.T) {
	text := "para one that is long enough\n\n# Heading\n\nfollowing content"
	units := Chunk(text, Options{Format: FormatMarkdown, Target: 10, Overlap: 0})
	// Target 10 is too small for "# Heading" plus the following paragraph, so
	// the heading forms its own chunk: [para one] [# Heading] [following content].
	require.Len(t, units, 3)
	assert.NotContains(t, units[0].Text, "# Heading")
	assert.Contains(t, units[1].Text, "# Heading")
}
