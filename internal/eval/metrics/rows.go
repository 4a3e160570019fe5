package metrics

import (
	"fmt"
	"regexp"
	"strings"
)

// Row is one extracted vocabulary entry
type Row struct {
	Term    string
	Meaning string
	Example string
}

// FieldMatch represents the comparison result for a single field
type FieldMatch struct {
	Expected string
	Actual   string
	Score    float64 // 0.0 to 1.0
	Method   string  // "exact", "substring", "fuzzy_high", "fuzzy_medium", "no_match", "*_missing"
	Notes    string
}

// RowComparison compares the rows at one position of the two outputs
type RowComparison struct {
	Index   int
	Term    FieldMatch
	Meaning FieldMatch
	Example FieldMatch
	Score   float64
	Method  string // "compared", "missing", "extra"
}

// Comparison is the result of comparing an extraction against its reference
type Comparison struct {
	Rows             []RowComparison
	ExpectedRows     int
	ActualRows       int
	RowsMatched      int
	RowsMissing      int
	RowsExtra        int
	LevenshteinTotal int
	OverallScore     float64
}

// Term weighs most because the example and meaning are keyed on it
var fieldWeights = struct{ term, meaning, example float64 }{0.4, 0.3, 0.3}

var separatorLine = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)

// ParseRows splits model output into rows. Tab separated lines are
// preferred; pipe separated (markdown table) lines are accepted as well.
// Code fences, table separators and lines with a single field are skipped.
func ParseRows(text string) []Row {
	var rows []Row
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "```") || separatorLine.MatchString(trimmed) {
			continue
		}

		var fields []string
		if strings.Contains(line, "\t") {
			fields = strings.Split(line, "\t")
		} else if strings.Contains(trimmed, "|") {
			fields = strings.Split(strings.Trim(trimmed, "|"), "|")
		}
		if len(fields) < 2 {
			continue
		}

		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		for len(fields) < 3 {
			fields = append(fields, "")
		}
		rows = append(rows, Row{
			Term:    fields[0],
			Meaning: fields[1],
			Example: strings.Join(fields[2:], " "),
		})
	}
	return rows
}

// CompareRows scores actual output against expected output row by row, in order.
// Missing and extra rows score zero and count towards the denominator.
func CompareRows(expected, actual string) *Comparison {
	expRows := ParseRows(expected)
	actRows := ParseRows(actual)

	comparison := &Comparison{
		ExpectedRows: len(expRows),
		ActualRows:   len(actRows),
	}

	n := max(len(expRows), len(actRows))
	totalScore := 0.0
	for i := 0; i < n; i++ {
		rc := RowComparison{Index: i}
		switch {
		case i >= len(actRows):
			rc.Method = "missing"
			rc.Term = FieldMatch{Expected: expRows[i].Term, Method: "actual_missing"}
			comparison.RowsMissing++
		case i >= len(expRows):
			rc.Method = "extra"
			rc.Term = FieldMatch{Actual: actRows[i].Term, Method: "expected_missing"}
			comparison.RowsExtra++
		default:
			rc.Method = "compared"
			rc.Term = compareField(expRows[i].Term, actRows[i].Term)
			rc.Meaning = compareField(expRows[i].Meaning, actRows[i].Meaning)
			rc.Example = compareField(expRows[i].Example, actRows[i].Example)
			rc.Score = rc.Term.Score*fieldWeights.term +
				rc.Meaning.Score*fieldWeights.meaning +
				rc.Example.Score*fieldWeights.example

			for _, pair := range [][2]string{
				{expRows[i].Term, actRows[i].Term},
				{expRows[i].Meaning, actRows[i].Meaning},
				{expRows[i].Example, actRows[i].Example},
			} {
				comparison.LevenshteinTotal += levenshteinDistance(normalizeForComparison(pair[0]), normalizeForComparison(pair[1]))
			}
			if rc.Score >= 0.8 {
				comparison.RowsMatched++
			}
		}
		totalScore += rc.Score
		comparison.Rows = append(comparison.Rows, rc)
	}

	if n > 0 {
		comparison.OverallScore = totalScore / float64(n)
	}
	return comparison
}

// compareField performs detailed field comparison with fuzzy matching
func compareField(expected, actual string) FieldMatch {
	match := FieldMatch{
		Expected: expected,
		Actual:   actual,
	}

	expNorm := normalizeForComparison(expected)
	actNorm := normalizeForComparison(actual)

	if expNorm == "" && actNorm == "" {
		match.Score = 1.0
		match.Method = "both_missing"
		match.Notes = "Both fields are empty"
		return match
	}

	if expNorm == "" {
		match.Score = 0.0
		match.Method = "expected_missing"
		match.Notes = "Reference has no value for this field"
		return match
	}

	if actNorm == "" {
		match.Score = 0.0
		match.Method = "actual_missing"
		match.Notes = "Output is missing this field"
		return match
	}

	if expNorm == actNorm {
		match.Score = 1.0
		match.Method = "exact"
		match.Notes = "Exact match"
		return match
	}

	if strings.Contains(actNorm, expNorm) || strings.Contains(expNorm, actNorm) {
		match.Score = 0.8
		match.Method = "substring"
		match.Notes = "Partial match (substring found)"
		return match
	}

	similarity := calculateSimilarity(expNorm, actNorm)
	match.Score = similarity
	if similarity > 0.7 {
		match.Method = "fuzzy_high"
		match.Notes = fmt.Sprintf("High similarity (%.2f)", similarity)
	} else if similarity > 0.4 {
		match.Method = "fuzzy_medium"
		match.Notes = fmt.Sprintf("Medium similarity (%.2f)", similarity)
	} else {
		match.Method = "no_match"
		match.Notes = fmt.Sprintf("Low similarity (%.2f)", similarity)
	}

	return match
}

// Braces are kept: they mark the term inside the example sentence
var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s{}]`)

// normalizeForComparison lowercases, strips punctuation and collapses whitespace
func normalizeForComparison(text string) string {
	text = strings.ToLower(text)
	text = punctuation.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// calculateSimilarity calculates similarity ratio (0.0 to 1.0) using Levenshtein distance
func calculateSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0.0
	}

	distance := levenshteinDistance(s1, s2)
	maxLen := max(len(r1), len(r2))

	return 1.0 - (float64(distance) / float64(maxLen))
}

// levenshteinDistance counts rune edits so Hangul syllables weigh one each
func levenshteinDistance(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}

	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}
