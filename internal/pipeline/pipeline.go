package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
	"github.com/couchcryptid/aquifer-watch-service/internal/observability"
)

// BatchExtractor reads up to batchSize raw messages from the ingest topic.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Transformer converts a raw message into a reading.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawMessage) (domain.Reading, error)
}

// BatchLoader persists multiple readings to the sample store.
type BatchLoader interface {
	LoadBatch(ctx context.Context, readings []domain.Reading) error
}

// Pipeline orchestrates the ingest loop: extract readings, parse them, and
// store them. Only raw samples are persisted; analyses are always computed on
// request.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// Ready reports whether at least one batch has been stored.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// CheckReadiness returns nil if the pipeline has stored at least one batch,
// or an error describing why ingest is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("ingest pipeline has not stored any readings yet")
	}
	return nil
}

// Run consumes readings until the context is cancelled. A batch whose store
// fails is retried with backoff until it lands, so offsets are only committed
// for readings that are durably stored or unparseable.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("ingest pipeline started", "batch_size", p.batchSize)
	p.metrics.IngestRunning.Set(1)
	defer p.metrics.IngestRunning.Set(0)

	retry := newBackoff()
	for ctx.Err() == nil {
		raws, err := p.extractor.ExtractBatch(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("extract batch failed", "error", err, "retry_in", retry.next)
			if !retry.wait(ctx) {
				break
			}
			continue
		}
		retry.reset()

		if len(raws) > 0 && !p.ingest(ctx, raws, retry) {
			break
		}
	}

	p.logger.Info("ingest pipeline stopping", "reason", ctx.Err())
	return nil
}

// ingest parses, stores and commits one batch. It returns false only when the
// context ends while the store is being retried.
func (p *Pipeline) ingest(ctx context.Context, raws []domain.RawMessage, retry *backoff) bool {
	start := time.Now()
	p.metrics.MessagesConsumed.Add(float64(len(raws)))
	p.metrics.BatchSize.Observe(float64(len(raws)))

	readings := latestPerDay(p.parse(ctx, raws))
	if len(readings) > 0 {
		if !p.store(ctx, readings, retry) {
			return false
		}
		p.metrics.ReadingsStored.Add(float64(len(readings)))
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
		p.logger.Debug("stored readings", "readings", len(readings), "messages", len(raws))
	}

	for _, raw := range raws {
		p.commitOffset(ctx, raw)
	}
	return true
}

// parse converts each message into a reading. Malformed messages are logged,
// counted and dropped; they are still committed with the rest of the batch.
func (p *Pipeline) parse(ctx context.Context, raws []domain.RawMessage) []domain.Reading {
	readings := make([]domain.Reading, 0, len(raws))
	for _, raw := range raws {
		r, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("malformed reading, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

// latestPerDay keeps the last reading for each source and calendar day,
// preserving first-seen order. The store upserts on the same key, so this only
// saves redundant writes.
func latestPerDay(readings []domain.Reading) []domain.Reading {
	type key struct {
		source string
		day    time.Time
	}
	index := make(map[key]int, len(readings))
	out := readings[:0:0]
	for _, r := range readings {
		k := key{source: r.Source, day: r.Date}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// store retries LoadBatch until it succeeds or ctx ends.
func (p *Pipeline) store(ctx context.Context, readings []domain.Reading, retry *backoff) bool {
	for {
		err := p.loader.LoadBatch(ctx, readings)
		if err == nil {
			retry.reset()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("store batch failed", "error", err, "readings", len(readings), "retry_in", retry.next)
		if !retry.wait(ctx) {
			return false
		}
	}
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// Retry backoff for extract and store failures.
const (
	initialBackoff  = 200 * time.Millisecond
	maxRetryBackoff = 5 * time.Second
)

// backoff doubles the wait after every failure up to maxRetryBackoff.
type backoff struct {
	next time.Duration
}

func newBackoff() *backoff {
	return &backoff{next: initialBackoff}
}

func (b *backoff) reset() { b.next = initialBackoff }

// wait sleeps for the current delay and advances it. It returns false if ctx
// ended first.
func (b *backoff) wait(ctx context.Context) bool {
	timer := time.NewTimer(b.next)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	b.next = min(b.next*2, maxRetryBackoff)
	return true
}
