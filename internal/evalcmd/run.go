package evalcmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/dataurl"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/eval/dataset"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/eval/metrics"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/ocr"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/uploader"
	"golang.org/x/sync/errgroup"
)

// Extractor is the part of ocr.Service the evaluation needs
type Extractor interface {
	Extract(ctx context.Context, images []dataurl.Image) (*ocr.Result, error)
}

// Evaluate runs every record through ext with at most concurrency records in
// flight. Results keep the dataset order. Per-record failures are recorded
// on the result; only cancellation of ctx aborts the run.
func Evaluate(ctx context.Context, ext Extractor, records []dataset.Record, baseDir string, concurrency int) ([]metrics.EvaluationResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]metrics.EvaluationResult, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			slog.Info("Processing record", "id", records[i].ID, "progress", fmt.Sprintf("%d/%d", i+1, len(records)))
			results[i] = processRecord(gctx, ext, records[i], baseDir)
			return gctx.Err()
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return results, fmt.Errorf("evaluation interrupted: %w", err)
	}
	return results, nil
}

func processRecord(ctx context.Context, ext Extractor, record dataset.Record, baseDir string) metrics.EvaluationResult {
	result := metrics.EvaluationResult{
		ID:       record.ID,
		Expected: record.Expected,
	}

	start := time.Now()

	images, err := loadImages(record, baseDir)
	if err != nil {
		result.Error = err.Error()
		result.ProcessingTime = time.Since(start)
		return result
	}

	out, err := ext.Extract(ctx, images)
	if out != nil {
		result.Output = out.Text
		result.Rounds = len(out.Rounds)
		result.FinishReasons = out.FinishReasons
	}
	if err != nil {
		slog.Warn("Record failed", "id", record.ID, "err", err)
		result.Error = err.Error()
		result.ProcessingTime = time.Since(start)
		return result
	}

	result.Comparison = metrics.CompareRows(record.Expected, out.Text)
	result.ProcessingTime = time.Since(start)
	return result
}

// loadImages turns the record's references into parsed data URLs
func loadImages(record dataset.Record, baseDir string) ([]dataurl.Image, error) {
	if len(record.Images) == 0 {
		return nil, ocr.ErrNoImages
	}

	images := make([]dataurl.Image, 0, len(record.Images))
	for _, ref := range record.ImagePaths(baseDir) {
		s := ref
		if !dataset.IsDataURL(ref) {
			encoded, err := uploader.EncodeFile(ref)
			if err != nil {
				return nil, err
			}
			s = encoded
		}

		img, err := dataurl.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		images = append(images, img)
	}
	return images, nil
}
