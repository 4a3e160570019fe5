package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// EvaluationResult is the outcome of running OCR on one dataset record
type EvaluationResult struct {
	ID             string
	Output         string
	Expected       string
	Comparison     *Comparison
	Rounds         int
	FinishReasons  []string
	ProcessingTime time.Duration
	Error          string // If extraction failed
}

// AggregateResults represents aggregated evaluation metrics
type AggregateResults struct {
	TotalRecords int
	SuccessCount int
	FailureCount int

	// Records that needed at least one continuation round
	ContinuedCount int

	TermAccuracy    FieldStats
	MeaningAccuracy FieldStats
	ExampleAccuracy FieldStats

	ExpectedRows int
	RowsMatched  int
	RowsMissing  int
	RowsExtra    int

	OverallAccuracy float64

	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration

	Results []EvaluationResult

	EvaluationDate time.Time
	Provider       string
	Model          string
	SampleSize     int
}

// FieldStats contains statistics for one column
type FieldStats struct {
	ExactMatches  int
	FuzzyMatches  int
	NoMatches     int
	MissingFields int
	AverageScore  float64
	Scores        []float64
}

// AggregateEvaluationResults aggregates multiple evaluation results
func AggregateEvaluationResults(results []EvaluationResult, provider, model string) *AggregateResults {
	agg := &AggregateResults{
		TotalRecords:    len(results),
		Results:         results,
		EvaluationDate:  time.Now(),
		Provider:        provider,
		Model:           model,
		SampleSize:      len(results),
		TermAccuracy:    FieldStats{Scores: []float64{}},
		MeaningAccuracy: FieldStats{Scores: []float64{}},
		ExampleAccuracy: FieldStats{Scores: []float64{}},
	}

	totalOverallScore := 0.0
	var successDuration time.Duration

	for _, result := range results {
		agg.TotalProcessingTime += result.ProcessingTime

		if result.Error != "" {
			agg.FailureCount++
			continue
		}

		agg.SuccessCount++
		successDuration += result.ProcessingTime
		if result.Rounds > 1 {
			agg.ContinuedCount++
		}

		if result.Comparison == nil {
			continue
		}

		for _, row := range result.Comparison.Rows {
			if row.Method != "compared" {
				continue
			}
			aggregateFieldStats(&agg.TermAccuracy, row.Term)
			aggregateFieldStats(&agg.MeaningAccuracy, row.Meaning)
			aggregateFieldStats(&agg.ExampleAccuracy, row.Example)
		}

		agg.ExpectedRows += result.Comparison.ExpectedRows
		agg.RowsMatched += result.Comparison.RowsMatched
		agg.RowsMissing += result.Comparison.RowsMissing
		agg.RowsExtra += result.Comparison.RowsExtra
		totalOverallScore += result.Comparison.OverallScore
	}

	if agg.SuccessCount > 0 {
		agg.TermAccuracy.AverageScore = calculateAverage(agg.TermAccuracy.Scores)
		agg.MeaningAccuracy.AverageScore = calculateAverage(agg.MeaningAccuracy.Scores)
		agg.ExampleAccuracy.AverageScore = calculateAverage(agg.ExampleAccuracy.Scores)
		agg.OverallAccuracy = totalOverallScore / float64(agg.SuccessCount)
		agg.AverageProcessingTime = successDuration / time.Duration(agg.SuccessCount)
	}

	return agg
}

// aggregateFieldStats updates field statistics
func aggregateFieldStats(stats *FieldStats, match FieldMatch) {
	stats.Scores = append(stats.Scores, match.Score)

	switch match.Method {
	case "exact", "both_missing":
		stats.ExactMatches++
	case "fuzzy_high", "fuzzy_medium", "substring":
		stats.FuzzyMatches++
	case "no_match":
		stats.NoMatches++
	case "actual_missing", "expected_missing":
		stats.MissingFields++
	}
}

// calculateAverage calculates the average of a slice of scores
func calculateAverage(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, score := range scores {
		sum += score
	}

	return sum / float64(len(scores))
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// PrintSummary writes a human-readable summary of the evaluation
func (a *AggregateResults) PrintSummary(w io.Writer) {
	line := strings.Repeat("=", 70)
	dash := strings.Repeat("-", 70)

	fmt.Fprintln(w, "\n"+line)
	fmt.Fprintln(w, "OCR EVALUATION SUMMARY")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Evaluation Date: %s\n", a.EvaluationDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Provider: %s\n", a.Provider)
	fmt.Fprintf(w, "Model: %s\n", a.Model)
	fmt.Fprintf(w, "Sample Size: %d records\n\n", a.SampleSize)

	fmt.Fprintln(w, "PROCESSING STATISTICS")
	fmt.Fprintln(w, dash)
	fmt.Fprintf(w, "Total Records: %d\n", a.TotalRecords)
	fmt.Fprintf(w, "Successful: %d (%.1f%%)\n", a.SuccessCount, percent(a.SuccessCount, a.TotalRecords))
	fmt.Fprintf(w, "Failed: %d (%.1f%%)\n", a.FailureCount, percent(a.FailureCount, a.TotalRecords))
	fmt.Fprintf(w, "Needed Continuation: %d\n", a.ContinuedCount)
	fmt.Fprintf(w, "Average Processing Time: %s\n", a.AverageProcessingTime)
	fmt.Fprintf(w, "Total Processing Time: %s\n\n", a.TotalProcessingTime)

	fmt.Fprintln(w, "ROW COVERAGE")
	fmt.Fprintln(w, dash)
	fmt.Fprintf(w, "Expected Rows: %d\n", a.ExpectedRows)
	fmt.Fprintf(w, "Matched: %d (%.1f%%)\n", a.RowsMatched, percent(a.RowsMatched, a.ExpectedRows))
	fmt.Fprintf(w, "Missing: %d\n", a.RowsMissing)
	fmt.Fprintf(w, "Extra: %d\n\n", a.RowsExtra)

	fmt.Fprintln(w, "COLUMN ACCURACY")
	fmt.Fprintln(w, dash)
	printFieldStats(w, "Term", a.TermAccuracy)
	printFieldStats(w, "Meaning", a.MeaningAccuracy)
	printFieldStats(w, "Example", a.ExampleAccuracy)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "OVERALL SCORE")
	fmt.Fprintln(w, dash)
	fmt.Fprintf(w, "Overall Accuracy: %.2f%% (%.3f)\n", a.OverallAccuracy*100, a.OverallAccuracy)
	fmt.Fprintln(w, line)
}

func printFieldStats(w io.Writer, fieldName string, stats FieldStats) {
	fmt.Fprintf(w, "\n%s:\n", fieldName)
	fmt.Fprintf(w, "  Average Score: %.2f%% (%.3f)\n", stats.AverageScore*100, stats.AverageScore)
	fmt.Fprintf(w, "  Exact Matches: %d\n", stats.ExactMatches)
	fmt.Fprintf(w, "  Fuzzy Matches: %d\n", stats.FuzzyMatches)
	fmt.Fprintf(w, "  No Matches: %d\n", stats.NoMatches)
	fmt.Fprintf(w, "  Missing Fields: %d\n", stats.MissingFields)
}

// SaveToJSON saves the aggregate results to a JSON file
func (a *AggregateResults) SaveToJSON(filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(a); err != nil {
		return fmt.Errorf("failed to encode results to JSON: %w", err)
	}

	return nil
}
