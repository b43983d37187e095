// Package complexity scores regex patterns for predicted engine cost.
// The heuristics target structures known to trigger catastrophic
// backtracking (ReDoS): nested quantifiers, overlapping quantified
// groups, and stacked greedy quantifiers score highest; literals and
// anchors barely register.
package complexity

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Level buckets for a score.
const (
	LevelVerySimple  = "very_simple"
	LevelSimple      = "simple"
	LevelModerate    = "moderate"
	LevelComplex     = "complex"
	LevelVeryComplex = "very_complex"
	LevelDangerous   = "dangerous"
)

// Report is the full scoring breakdown for one pattern.
type Report struct {
	Score         float64            `json:"score"`
	Level         string             `json:"level"`
	Risk          string             `json:"risk"`
	Warnings      []string           `json:"warnings"`
	Details       map[string]float64 `json:"details"`
	PatternLength int                `json:"pattern_length"`
}

var (
	reNestedQuantA  = regexp.MustCompile(`\([^)]*[+*{][^)]*\)[+*{]`)
	reNestedQuantB  = regexp.MustCompile(`\([^)]*\|[^)]*\)[+*{]`)
	reGreedySeq     = regexp.MustCompile(`[.+*]\s*[.+*]`)
	reDotStar       = regexp.MustCompile(`\.\*`)
	reDotPlus       = regexp.MustCompile(`\.\+`)
	reOverlapGroup  = regexp.MustCompile(`\([^)]*\|[^)]*[^)]+\)[+*]`)
	reLookaround    = regexp.MustCompile(`\(\?[=!<]`)
	reNestedLook    = regexp.MustCompile(`\(\?[=!<][^)]*\(\?[=!<]`)
	reBackref       = regexp.MustCompile(`\\[1-9]\d*`)
	reNestedAlt     = regexp.MustCompile(`\([^)]*\|[^)]*\)[^)]*\|`)
	reCharClass     = regexp.MustCompile(`\[[^\]]+\]`)
	reNegatedClass  = regexp.MustCompile(`\[\^[^\]]+\]`)
	reSimpleQuant   = regexp.MustCompile(`[^\\][+*?]|\{\d+,?\d*\}`)
	reLazyQuant     = regexp.MustCompile(`[+*?]\?`)
	reAnchor        = regexp.MustCompile(`[\^$]|\\[bBAGzZ]`)
	reSpecial       = regexp.MustCompile(`[\\()\[\]{}|+*?.^$]`)
)

func count(re *regexp.Regexp, s string) int {
	return len(re.FindAllString(s, -1))
}

// unescapedStars counts * occurrences not preceded by a backslash.
func unescapedStars(pattern string) int {
	n := 0
	for i, c := range pattern {
		if c == '*' && (i == 0 || pattern[i-1] != '\\') {
			n++
		}
	}
	return n
}

// Score analyzes a pattern and returns its cost report. It never fails:
// an unparseable pattern is still just a string to the heuristics.
func Score(pattern string) Report {
	var score float64
	var warnings []string
	details := make(map[string]float64)

	// Nested quantifiers: (a+)+, (a|b)+ and friends.
	nested := count(reNestedQuantA, pattern) + count(reNestedQuantB, pattern)
	if nested > 0 {
		score += float64(nested) * 50
		details["nested_quantifiers"] = float64(nested) * 50
		warnings = append(warnings, fmt.Sprintf("Found %d nested quantifier(s) - CRITICAL ReDoS risk", nested))
	}

	// Stacked greedy quantifiers, adjacent or spread across the pattern.
	greedySeq := count(reGreedySeq, pattern)
	dotStars := count(reDotStar, pattern)
	dotPlus := count(reDotPlus, pattern)
	bareStars := unescapedStars(pattern)

	var greedyScore float64
	if greedySeq > 0 {
		greedyScore += float64(greedySeq) * 25
	}
	if dotStars >= 2 {
		greedyScore += float64(dotStars-1) * 30
	}
	if dotPlus >= 2 {
		greedyScore += float64(dotPlus-1) * 25
	}
	if bareStars >= 2 {
		greedyScore += float64(bareStars-1) * 20
	}
	if greedyScore > 0 {
		score += greedyScore
		details["greedy_sequences"] = greedyScore

		var parts []string
		if greedySeq > 0 {
			parts = append(parts, fmt.Sprintf("%d adjacent greedy quantifier(s)", greedySeq))
		}
		if dotStars >= 2 {
			parts = append(parts, fmt.Sprintf("%d .* pattern(s)", dotStars))
		}
		if dotPlus >= 2 {
			parts = append(parts, fmt.Sprintf("%d .+ pattern(s)", dotPlus))
		}
		if bareStars >= 2 {
			parts = append(parts, fmt.Sprintf("%d bare * quantifier(s)", bareStars))
		}
		warnings = append(warnings, fmt.Sprintf("Found %s - CRITICAL backtracking risk", strings.Join(parts, ", ")))
	}

	// Overlapping quantified groups like (a|ab)+.
	if overlap := count(reOverlapGroup, pattern); overlap > 0 {
		score += float64(overlap) * 30
		details["overlapping_groups"] = float64(overlap) * 30
		warnings = append(warnings, fmt.Sprintf("Found %d potentially overlapping quantified group(s)", overlap))
	}

	// Lookarounds.
	if look := count(reLookaround, pattern); look > 0 {
		nestedLook := count(reNestedLook, pattern)
		lookScore := float64(look)*15 + float64(nestedLook)*15
		score += lookScore
		details["lookarounds"] = lookScore
		if nestedLook > 0 {
			warnings = append(warnings, fmt.Sprintf("Found %d nested lookaround(s) - performance impact", nestedLook))
		}
	}

	// Backreferences.
	if backrefs := count(reBackref, pattern); backrefs > 0 {
		score += float64(backrefs) * 20
		details["backreferences"] = float64(backrefs) * 20
		warnings = append(warnings, fmt.Sprintf("Found %d backreference(s) - NP-complete matching", backrefs))
	}

	// Alternation.
	if pipes := strings.Count(pattern, "|"); pipes > 0 {
		altScore := float64(pipes) * 5
		nestedAlt := count(reNestedAlt, pattern)
		altScore += float64(nestedAlt) * 10
		score += altScore
		details["alternation"] = altScore
		if nestedAlt > 0 {
			warnings = append(warnings, "Found nested alternation - increases backtracking")
		}
	}

	// Character classes.
	classScore := float64(count(reCharClass, pattern) + count(reNegatedClass, pattern))
	score += classScore
	details["character_classes"] = classScore

	// Quantifiers.
	quantScore := float64(count(reSimpleQuant, pattern))*3 + float64(count(reLazyQuant, pattern))*2
	score += quantScore
	details["quantifiers"] = quantScore

	// Anchors and boundaries.
	anchorScore := float64(count(reAnchor, pattern))
	score += anchorScore
	details["anchors"] = anchorScore

	// Literal characters.
	literals := len(pattern) - count(reSpecial, pattern)
	if literals < 0 {
		literals = 0
	}
	literalScore := float64(literals) * 0.1
	score += literalScore
	details["literals"] = math.Round(literalScore*10) / 10

	// Star height multiplier: depth of group nesting.
	depth, current := 0, 0
	for _, c := range pattern {
		switch c {
		case '(':
			current++
			if current > depth {
				depth = current
			}
		case ')':
			current--
		}
	}
	if depth > 1 {
		mult := math.Pow(1.5, float64(depth-1))
		score *= mult
		details["star_height_multiplier"] = math.Round(mult*100) / 100
		details["star_height_depth"] = float64(depth)
		if depth >= 3 {
			warnings = append(warnings, fmt.Sprintf("Deep nesting (depth %d) - complexity multiplier applied", depth))
		}
	}

	// Length multiplier for long patterns.
	if len(pattern) > 20 {
		mult := math.Log(float64(len(pattern))) / 10
		score *= mult
		details["length_multiplier"] = math.Round(mult*100) / 100
	}

	score = math.Round(score*10) / 10

	level, risk := classify(score)
	if level == LevelDangerous {
		warnings = append(warnings, "DANGER: This pattern may cause catastrophic backtracking!")
	}

	return Report{
		Score:         score,
		Level:         level,
		Risk:          risk,
		Warnings:      warnings,
		Details:       details,
		PatternLength: len(pattern),
	}
}

func classify(score float64) (level, risk string) {
	switch {
	case score <= 10:
		return LevelVerySimple, "Very low - essentially substring search"
	case score <= 30:
		return LevelSimple, "Low - basic pattern matching"
	case score <= 60:
		return LevelModerate, "Medium - reasonable performance expected"
	case score <= 100:
		return LevelComplex, "High - monitor performance on large files"
	case score <= 200:
		return LevelVeryComplex, "Very high - significant performance impact likely"
	default:
		return LevelDangerous, "CRITICAL - ReDoS risk, catastrophic backtracking likely"
	}
}
