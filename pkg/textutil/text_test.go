package textutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "hello", NormalizeText("  hello  ", 0))
	assert.Equal(t, "a\nb", NormalizeText("a\r\nb", 0))
	assert.Equal(t, "", NormalizeText("   \n\t ", 100))
}

func TestNormalizeText_ClampsRunesNotBytes(t *testing.T) {
	in := strings.Repeat("é", 10)

	got := NormalizeText(in, 4)

	assert.Equal(t, strings.Repeat("é", 4), got)
}

func TestNormalizeText_ZeroBudgetDisablesClamp(t *testing.T) {
	in := strings.Repeat("x", 5000)

	assert.Len(t, NormalizeText(in, 0), 5000)
	assert.Len(t, NormalizeText(in, -1), 5000)
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n\t b \r\n  c  "))
	assert.Equal(t, "", CollapseWhitespace("   "))
	assert.Equal(t, "unchanged", CollapseWhitespace("unchanged"))
}

func TestSummarizeError(t *testing.T) {
	assert.Equal(t, "", SummarizeError(nil, 100))

	err := errors.New("call failed:\n  connection   refused")
	assert.Equal(t, "call failed: connection refused", SummarizeError(err, 100))
}

func TestSummarizeError_CapsAndDefaults(t *testing.T) {
	long := errors.New(strings.Repeat("x", 500))

	assert.Len(t, SummarizeError(long, 10), 10)
	assert.Len(t, SummarizeError(long, 0), 240, "non-positive cap uses the default")
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Positive(t, EstimateTokens("hi"))

	short := EstimateTokens("one sentence")
	long := EstimateTokens(strings.Repeat("one sentence about discounts ", 40))
	assert.Greater(t, long, short)
}
