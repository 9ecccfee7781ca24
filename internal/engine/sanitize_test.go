package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeBM25Query_PassesThroughPlainQuery(t *testing.T) {
	assert.Equal(t, "quick brown fox", sanitizeBM25Query("quick brown fox"))
}

func TestSanitizeBM25Query_QuotesTokenWithHyphen(t *testing.T) {
	assert.Equal(t, `"node-llama-cpp"`, sanitizeBM25Query("node-llama-cpp"))
}

func TestSanitizeBM25Query_OnlyQuotesAffectedTokens(t *testing.T) {
	assert.Equal(t, `plain "has:colon" plain`, sanitizeBM25Query("plain has:colon plain"))
}

func TestSanitizeBM25Query_EscapesEmbeddedQuotes(t *testing.T) {
	assert.Equal(t, `"foo""bar-baz"`, sanitizeBM25Query(`foo"bar-baz`))
}

func TestSanitizeBM25Query_EmptyInputYieldsEmpty(t *testing.T) {
	assert.Equal(t, "", sanitizeBM25Query("   "))
}

func TestSanitizeBM25Query_AllSpecialTokensStillProducesNonEmpty(t *testing.T) {
	got := sanitizeBM25Query("(foo)")
	assert.NotEmpty(t, got)
}
