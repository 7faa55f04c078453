package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	t.Run("CaseAndWhitespaceInsensitive", func(t *testing.T) {
		a := Fingerprint("What did I work on last week?")
		b := Fingerprint("  what   did I work ON last week?  ")

		assert.Equal(t, a, b)
	})

	t.Run("DifferentTextDiffers", func(t *testing.T) {
		a := Fingerprint("What did I work on last week?")
		b := Fingerprint("Where do I live?")

		assert.NotEqual(t, a, b)
	})

	t.Run("LongTextTruncates", func(t *testing.T) {
		long := strings.Repeat("repeated filler text ", 100)

		a := Fingerprint(long + "tail one")
		b := Fingerprint(long + "tail two")

		assert.Equal(t, a, b, "truncation should ignore trailing differences")
	})
}

func TestParseDepth(t *testing.T) {
	for _, valid := range []string{"none", "fast", "balanced", "comprehensive"} {
		depth, err := ParseDepth(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, string(depth))
	}

	depth, err := ParseDepth("")
	require.NoError(t, err)
	assert.Equal(t, DepthBalanced, depth)

	_, err = ParseDepth("turbo")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatFlat, format)

	format, err = ParseFormat("layered")
	require.NoError(t, err)
	assert.Equal(t, FormatLayered, format)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestProfileFor(t *testing.T) {
	fast := ProfileFor(DepthFast)
	balanced := ProfileFor(DepthBalanced)
	comprehensive := ProfileFor(DepthComprehensive)

	assert.False(t, fast.UseModel)
	assert.True(t, balanced.UseModel)
	assert.Greater(t, comprehensive.WallClock, balanced.WallClock)
	assert.Greater(t, balanced.WallClock, fast.WallClock)
	assert.Greater(t, comprehensive.MaxItems, fast.MaxItems)
	assert.Greater(t, comprehensive.MaxFanOut, fast.MaxFanOut)
}
