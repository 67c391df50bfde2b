// Package collector downloads the daily grants extract and reconciles its
// opportunities into the store.
package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/model"
	"github.com/sells-group/grants-cli/internal/tracing"
)

// DefaultBatchSize is the number of records reconciled per batch.
const DefaultBatchSize = 50

// Collector runs the fetch, decompress, parse, and reconcile pipeline.
type Collector struct {
	source     ExtractSource
	reconciler *Reconciler
	batchSize  int
}

// New creates a Collector. A batchSize below 1 uses DefaultBatchSize.
func New(source ExtractSource, reconciler *Reconciler, batchSize int) *Collector {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Collector{source: source, reconciler: reconciler, batchSize: batchSize}
}

// Run performs one collection pass. It always returns a report and never
// panics; failures are recorded in Report.Errors.
func (c *Collector) Run(ctx context.Context) (report *Report) {
	log := zap.L().With(zap.String("component", "collector"))
	started := time.Now()
	report = &Report{StartedAt: started.UTC(), Errors: []string{}}

	ctx, span := tracing.Start(ctx, "collector.run")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.Error("collection panicked", zap.Any("panic", r), zap.Stack("stack"))
			report.addError(eris.Errorf("collection failed: panic: %v", r))
		}
		report.finish(started)
		log.Info(report.Summary())
		span.SetAttributes(
			attribute.Bool("collector.success", report.Success),
			attribute.Int("collector.processed", report.Processed),
			attribute.Int("collector.errors", len(report.Errors)),
		)
	}()

	fail := func(stage string, err error) *Report {
		log.Error("collection aborted", zap.String("stage", stage), zap.Error(err))
		tracing.Fail(span, err)
		report.addError(eris.Wrap(err, "collection failed"))
		return report
	}

	ex, err := c.fetch(ctx)
	if err != nil {
		return fail("fetch", err)
	}
	report.ExtractDate = &ex.Date
	report.ExtractURL = ex.URL

	data, err := Decompress(ex)
	if err != nil {
		return fail("decompress", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		return fail("parse", err)
	}
	report.Skipped = parsed.Dropped
	if parsed.Shape == "" {
		log.Warn("unrecognized extract layout, no records found", zap.String("url", ex.URL))
	}
	log.Info("extract parsed",
		zap.String("shape", parsed.Shape),
		zap.Int("records", len(parsed.Records)),
		zap.Int("dropped", parsed.Dropped),
	)

	records := parsed.Records
	batches := (len(records) + c.batchSize - 1) / c.batchSize
	attempted := 0
	for b := 0; b < batches && ctx.Err() == nil; b++ {
		end := min((b+1)*c.batchSize, len(records))
		attempted += c.runBatch(ctx, b+1, records[b*c.batchSize:end], report)

		log.Info("batch complete",
			zap.Int("batch", b+1),
			zap.Int("batches", batches),
			zap.Int("processed", report.Processed),
		)
	}
	if err := ctx.Err(); err != nil && attempted < len(records) {
		log.Warn("collection cancelled", zap.Int("remaining", len(records)-attempted))
		report.addError(eris.Wrap(err, "collection cancelled"))
	}

	return report
}

func (c *Collector) fetch(ctx context.Context) (*Extract, error) {
	ctx, span := tracing.Start(ctx, "collector.fetch")
	defer span.End()

	ex, err := c.source.Latest(ctx)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("extract.url", ex.URL), attribute.Int("extract.bytes", len(ex.Data)))
	return ex, nil
}

// runBatch reconciles records in order and returns how many it attempted.
// A panic escaping a record is recorded once as a BatchError and ends the batch.
func (c *Collector) runBatch(ctx context.Context, n int, records []RawRecord, report *Report) (attempted int) {
	ctx, span := tracing.Start(ctx, "collector.batch",
		attribute.Int("batch.number", n),
		attribute.Int("batch.size", len(records)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := &BatchError{Batch: n, Err: eris.Errorf("panic: %v", r)}
			zap.L().Error("batch failed", zap.String("component", "collector"), zap.Error(err))
			tracing.Fail(span, err)
			report.addError(err)
		}
	}()

	for _, rec := range records {
		if ctx.Err() != nil {
			return attempted
		}
		attempted++

		opp, contact := Normalize(rec)
		changeType, err := c.reconciler.Reconcile(ctx, opp, contact)
		if err != nil {
			zap.L().Warn("record failed",
				zap.String("component", "collector"),
				zap.String("opportunity_id", opp.OpportunityID),
				zap.Error(err),
			)
			report.addError(err)
			continue
		}

		report.Processed++
		switch changeType {
		case model.ChangeNew:
			report.Created++
		case model.ChangeModified:
			report.Updated++
		}
	}
	return attempted
}
