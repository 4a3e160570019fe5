package results

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/eval/metrics"
	"gopkg.in/yaml.v3"
)

// EvalConfig represents the configuration section of the eval YAML
type EvalConfig struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	Prompt          string  `yaml:"prompt"`
	Temperature     float64 `yaml:"temperature"`
	MaxRounds       int     `yaml:"maxrounds"`
	MaxOutputTokens int     `yaml:"maxoutputtokens"`
	DatasetPath     string  `yaml:"datasetpath"`
	SampleSize      int     `yaml:"samplesize"`
	Timestamp       string  `yaml:"timestamp"`
}

// EvalResult represents a single evaluation result
type EvalResult struct {
	Identifier       string   `yaml:"identifier"`
	ProviderResponse string   `yaml:"providerresponse"`
	Reference        string   `yaml:"reference"`
	Rounds           int      `yaml:"rounds"`
	FinishReasons    []string `yaml:"finishreasons,omitempty"`
	OverallScore     float64  `yaml:"overallscore"`
	LevenshteinTotal int      `yaml:"levenshteintotal"`
	RowsExpected     int      `yaml:"rowsexpected"`
	RowsMatched      int      `yaml:"rowsmatched"`
	RowsMissing      int      `yaml:"rowsmissing"`
	RowsExtra        int      `yaml:"rowsextra"`
	Error            string   `yaml:"error,omitempty"`
}

// EvalSpec represents the complete evaluation report
type EvalSpec struct {
	Config  EvalConfig   `yaml:"config"`
	Results []EvalResult `yaml:"results"`
}

// BuildSpec converts evaluation results into the report layout. Failed
// records are kept with their error so timeouts show up in the report.
func BuildSpec(cfg EvalConfig, results []metrics.EvaluationResult) EvalSpec {
	if cfg.Timestamp == "" {
		cfg.Timestamp = time.Now().Format("2006-01-02_15-04-05")
	}

	spec := EvalSpec{
		Config:  cfg,
		Results: make([]EvalResult, 0, len(results)),
	}

	for _, r := range results {
		evalResult := EvalResult{
			Identifier:       r.ID,
			ProviderResponse: r.Output,
			Reference:        r.Expected,
			Rounds:           r.Rounds,
			FinishReasons:    r.FinishReasons,
			Error:            r.Error,
		}

		if r.Comparison != nil {
			evalResult.OverallScore = r.Comparison.OverallScore
			evalResult.LevenshteinTotal = r.Comparison.LevenshteinTotal
			evalResult.RowsExpected = r.Comparison.ExpectedRows
			evalResult.RowsMatched = r.Comparison.RowsMatched
			evalResult.RowsMissing = r.Comparison.RowsMissing
			evalResult.RowsExtra = r.Comparison.RowsExtra
		}

		spec.Results = append(spec.Results, evalResult)
	}

	return spec
}

// SaveToYAML writes the report to dir and returns the file path
func SaveToYAML(dir string, cfg EvalConfig, results []metrics.EvaluationResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	spec := BuildSpec(cfg, results)

	// Model names such as "mistral-small3.2:24b" or "models/x" are not file-safe
	model := strings.NewReplacer("/", "_", ":", "_").Replace(spec.Config.Model)
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", model, spec.Config.Timestamp))

	data, err := yaml.Marshal(&spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}

	return filename, nil
}
