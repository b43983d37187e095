package complexity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiteralPatternVerySimple(t *testing.T) {
	r := Score("error")
	assert.Equal(t, LevelVerySimple, r.Level)
	assert.InDelta(t, 0.5, r.Score, 0.001)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, 5, r.PatternLength)
}

func TestAnchorsStayCheap(t *testing.T) {
	r := Score("^error$")
	assert.Equal(t, LevelVerySimple, r.Level)
	assert.InDelta(t, 2.0, r.Details["anchors"], 0.001)
}

func TestNestedQuantifierScoresCritical(t *testing.T) {
	r := Score("(a+)+")
	assert.InDelta(t, 50.0, r.Details["nested_quantifiers"], 0.001)
	assert.Contains(t, r.Warnings[0], "nested quantifier")
	assert.GreaterOrEqual(t, r.Score, 50.0)
}

func TestStackedDotStarsScoreHigh(t *testing.T) {
	r := Score(".*foo.*")
	assert.Greater(t, r.Details["greedy_sequences"], 50.0)
	assert.Equal(t, LevelVeryComplex, r.Level)

	var found bool
	for _, w := range r.Warnings {
		if strings.Contains(w, "backtracking") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBackreferencesScored(t *testing.T) {
	r := Score(`(\w+) \1`)
	assert.InDelta(t, 20.0, r.Details["backreferences"], 0.001)
}

func TestLookaroundScored(t *testing.T) {
	r := Score(`(?=foo)bar`)
	assert.InDelta(t, 15.0, r.Details["lookarounds"], 0.001)
}

func TestAlternationPerBranch(t *testing.T) {
	r := Score("error|warn|fatal")
	assert.InDelta(t, 10.0, r.Details["alternation"], 0.001)
}

func TestStarHeightMultiplier(t *testing.T) {
	shallow := Score("(ab)c")
	deep := Score("((ab)c)")
	_, shallowHas := shallow.Details["star_height_multiplier"]
	assert.False(t, shallowHas, "depth 1 gets no multiplier")
	assert.InDelta(t, 1.5, deep.Details["star_height_multiplier"], 0.001)
	assert.InDelta(t, 2.0, deep.Details["star_height_depth"], 0.001)
}

func TestLengthMultiplierKicksInPast20(t *testing.T) {
	short := Score("abcdefghij")
	_, shortHas := short.Details["length_multiplier"]
	assert.False(t, shortHas)

	long := Score("abcdefghijklmnopqrstuvwxyz")
	_, longHas := long.Details["length_multiplier"]
	assert.True(t, longHas)
}

func TestMonotonicOrdering(t *testing.T) {
	literal := Score("needle")
	simple := Score(`\d+ errors`)
	nested := Score("(a+)+(b+)+")

	assert.Less(t, literal.Score, simple.Score)
	assert.Less(t, simple.Score, nested.Score)
}

func TestUnescapedStarCounting(t *testing.T) {
	assert.Equal(t, 2, unescapedStars("a*b*"))
	assert.Equal(t, 0, unescapedStars(`a\*b\*`))
	assert.Equal(t, 1, unescapedStars(`\**`))
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		level string
	}{
		{0, LevelVerySimple},
		{10, LevelVerySimple},
		{10.1, LevelSimple},
		{30, LevelSimple},
		{60, LevelModerate},
		{100, LevelComplex},
		{200, LevelVeryComplex},
		{200.1, LevelDangerous},
	}
	for _, c := range cases {
		level, _ := classify(c.score)
		assert.Equal(t, c.level, level, "score %v", c.score)
	}
}

func TestDangerousPatternWarns(t *testing.T) {
	r := Score("(x+x+)+(a|aa)+.*.*")
	assert.Equal(t, LevelDangerous, r.Level)
	assert.Contains(t, r.Warnings[len(r.Warnings)-1], "DANGER")
}
