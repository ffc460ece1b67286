package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/melbourne-sensors/internal/pkg/melbourne"
)

type stage string

// write failures never fail the run, so no write stage appears here.
const (
	stageWatermark stage = "watermark"
	stageFetch     stage = "fetch"
)

// Record is any normalized record that can name its dedup key.
type Record interface {
	Key() string
}

// Dataset wires one dataset's collaborators into the orchestrator. Watermark
// and Write talk to the store; FetchPage talks to the upstream API; Decode is
// pure.
type Dataset[T Record] struct {
	Name      string
	Watermark func(ctx context.Context) (*time.Time, error)
	FetchPage func(ctx context.Context, watermark *time.Time, offset int) (*melbourne.Page, error)
	Decode    func(page *melbourne.Page, fetchedAt time.Time) ([]T, int)
	Write     func(ctx context.Context, batch []T) (int64, error)
}

// Summary is what one dataset run reports on completion.
type Summary struct {
	Dataset     string
	Fetched     int
	Inserted    int64
	Skipped     int64
	DecodeSkips int
	WriteErrors int
	Elapsed     time.Duration
}

// Run drives one dataset to completion: fetch a page, decode it, write it in
// bounded batches, then fetch the next. Pages are streamed, never buffered
// whole. The returned Summary is valid even when err is non-nil; err marks
// the run FAILED and names the stage that broke.
func Run[T Record](ctx context.Context, ds Dataset[T], batchSize int, logger *zap.Logger) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Dataset: ds.Name}
	fail := func(s stage, err error) (*Summary, error) {
		summary.Elapsed = time.Since(start)
		return summary, fmt.Errorf("dataset %s: %s stage: %w", ds.Name, s, err)
	}

	watermark, err := ds.Watermark(ctx)
	if err != nil {
		return fail(stageWatermark, err)
	}
	if watermark == nil {
		logger.Info("no stored records, fetching from the beginning", zap.String("dataset", ds.Name))
	} else {
		logger.Info("resuming from watermark", zap.String("dataset", ds.Name), zap.Time("watermark", *watermark))
	}

	offset := 0
	for {
		page, err := ds.FetchPage(ctx, watermark, offset)
		if err != nil {
			return fail(stageFetch, err)
		}
		if len(page.Results) == 0 {
			break
		}
		summary.Fetched += len(page.Results)

		records, skipped := ds.Decode(page, time.Now().UTC())
		summary.DecodeSkips += skipped

		for _, batch := range lo.Chunk(records, batchSize) {
			inserted, err := ds.Write(ctx, batch)
			if err != nil {
				// earlier batches are already committed; keep going and
				// report the failure in the summary.
				summary.WriteErrors++
				logger.Error("batch write failed",
					zap.String("dataset", ds.Name),
					zap.Int("batch_size", len(batch)),
					zap.String("first_key", batch[0].Key()),
					zap.String("last_key", batch[len(batch)-1].Key()),
					zap.Error(err))
				continue
			}
			summary.Inserted += inserted
			summary.Skipped += int64(len(batch)) - inserted
		}

		logger.Info("page processed",
			zap.String("dataset", ds.Name),
			zap.Int("offset", offset),
			zap.Int("records", len(page.Results)),
			zap.Int64("inserted_so_far", summary.Inserted))

		if !page.HasMore {
			break
		}
		offset += len(page.Results)
	}

	summary.Elapsed = time.Since(start)
	logger.Info("dataset run complete",
		zap.String("dataset", ds.Name),
		zap.Int("fetched", summary.Fetched),
		zap.Int64("inserted", summary.Inserted),
		zap.Int64("skipped", summary.Skipped),
		zap.Int("decode_skips", summary.DecodeSkips),
		zap.Int("write_errors", summary.WriteErrors),
		zap.Duration("elapsed", summary.Elapsed))

	return summary, nil
}
