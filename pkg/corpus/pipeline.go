package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"tinylm/internal/logger"
	"tinylm/pkg/tokenizer"
)

// Options controls batching and reporting.
type Options struct {
	// BatchSize is the number of records encoded and flushed together.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// BatchLogAmount is the number of full batches between progress reports.
	BatchLogAmount int `yaml:"batch_log_amount" json:"batch_log_amount"`

	// Index also writes a <corpus>.idx sidecar of record boundaries.
	Index bool `yaml:"index" json:"index"`
}

// DefaultOptions returns 256-record batches with a report every 1000 batches.
func DefaultOptions() Options {
	return Options{BatchSize: 256, BatchLogAmount: 1000}
}

// Validate rejects non-positive batch settings.
func (o Options) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidOptions, o.BatchSize)
	}
	if o.BatchLogAmount <= 0 {
		return fmt.Errorf("%w: batch log amount must be positive, got %d", ErrInvalidOptions, o.BatchLogAmount)
	}
	return nil
}

// Stats are the running counters of one pipeline run.
type Stats struct {
	RunID        string        `json:"run_id"`
	Reports      int           `json:"reports"`
	Records      int64         `json:"records"`
	Tokens       int64         `json:"tokens"`
	BytesWritten int64         `json:"bytes_written"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// GiB returns BytesWritten in binary gigabytes.
func (s Stats) GiB() float64 {
	return float64(s.BytesWritten) / (1 << 30)
}

// Hours returns Elapsed in hours.
func (s Stats) Hours() float64 {
	return s.Elapsed.Hours()
}

// Observer receives a snapshot at every progress report and once more when
// the run ends. Observers must not block.
type Observer interface {
	Observe(stats Stats, final bool)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(stats Stats, final bool)

func (f ObserverFunc) Observe(stats Stats, final bool) { f(stats, final) }

// Pipeline tokenizes records in fixed-size batches and appends the IDs to a
// token corpus.
type Pipeline struct {
	enc       tokenizer.Encoder
	opts      Options
	log       logger.Logger
	observers []Observer
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for progress and summary records.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithObserver registers an observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. The encoder is required.
func New(enc tokenizer.Encoder, opts Options, options ...Option) (*Pipeline, error) {
	if enc == nil {
		return nil, fmt.Errorf("%w: encoder is required", ErrInvalidOptions)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		enc:  enc,
		opts: opts,
		log:  logger.Discard(),
		now:  time.Now,
	}
	for _, o := range options {
		o(p)
	}
	return p, nil
}

// Options returns the pipeline's options.
func (p *Pipeline) Options() Options { return p.opts }

// RunFile runs the pipeline into path, creating or truncating it. When the
// Index option is set, path+".idx" is written alongside.
func (p *Pipeline) RunFile(ctx context.Context, src Source, path string) (stats Stats, err error) {
	out, err := os.Create(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create corpus file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close corpus file: %w", cerr)
		}
	}()

	var idx io.Writer
	if p.opts.Index {
		idxFile, err := os.Create(IndexPath(path))
		if err != nil {
			return Stats{}, fmt.Errorf("failed to create index file: %w", err)
		}
		defer func() {
			if cerr := idxFile.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close index file: %w", cerr)
			}
		}()
		idx = idxFile
	}

	return p.Run(ctx, src, out, idx)
}

// Run consumes src until io.EOF and writes token IDs to out. idx may be nil;
// otherwise it receives one index entry per record.
//
// Records are buffered until exactly BatchSize are held, then the whole batch
// is encoded, range-checked and written, and out is flushed. A trailing
// partial batch is written the same way at EOF. Any error stops the run; the
// output then holds every batch completed before it. Cancellation is checked
// between batches.
func (p *Pipeline) Run(ctx context.Context, src Source, out io.Writer, idx io.Writer) (Stats, error) {
	stats := Stats{RunID: uuid.NewString()}
	start := p.now()
	log := p.log.With("run_id", stats.RunID)
	w := newTokenWriter(out, idx)

	reportEvery := int64(p.opts.BatchSize) * int64(p.opts.BatchLogAmount)
	batch := make([]string, 0, p.opts.BatchSize)

	for {
		if err := ctx.Err(); err != nil {
			return p.finish(log, stats, start, err)
		}

		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.finish(log, stats, start, fmt.Errorf("failed to read record %d: %w", stats.Records+int64(len(batch))+1, err))
		}

		batch = append(batch, rec.Text)
		if len(batch) < p.opts.BatchSize {
			continue
		}

		if err := p.writeBatch(w, batch, &stats); err != nil {
			return p.finish(log, stats, start, err)
		}
		batch = batch[:0]

		if stats.Records%reportEvery == 0 {
			stats.Reports++
			stats.Elapsed = p.now().Sub(start)
			log.Info("progress",
				"log", stats.Reports,
				"records", stats.Records,
				"tokens", stats.Tokens,
				"gib_written", stats.GiB(),
				"hours_elapsed", stats.Hours())
			p.notify(stats, false)
		}
	}

	if len(batch) > 0 {
		if err := p.writeBatch(w, batch, &stats); err != nil {
			return p.finish(log, stats, start, err)
		}
	}

	return p.finish(log, stats, start, nil)
}

// writeBatch encodes every record before writing any of them, so a bad
// record leaves the output at the previous batch boundary.
func (p *Pipeline) writeBatch(w *tokenWriter, batch []string, stats *Stats) error {
	vocab := p.enc.VocabSize()
	encoded := make([][]int, len(batch))
	for i, text := range batch {
		ids, err := p.enc.Encode(text)
		if err != nil {
			return fmt.Errorf("failed to encode record %d: %w", stats.Records+int64(i)+1, err)
		}
		for _, id := range ids {
			if id < 0 || id >= vocab {
				return fmt.Errorf("%w: record %d produced ID %d, vocabulary size is %d",
					ErrTokenRange, stats.Records+int64(i)+1, id, vocab)
			}
		}
		encoded[i] = ids
	}

	var tokens int64
	for _, ids := range encoded {
		if err := w.writeRecord(ids); err != nil {
			return err
		}
		tokens += int64(len(ids))
	}
	if err := w.flush(); err != nil {
		return err
	}

	stats.Records += int64(len(batch))
	stats.Tokens += tokens
	stats.BytesWritten += tokens * TokenSize
	return nil
}

// finish stamps the elapsed time, logs the summary and notifies observers.
func (p *Pipeline) finish(log logger.Logger, stats Stats, start time.Time, err error) (Stats, error) {
	stats.Elapsed = p.now().Sub(start)
	args := []any{
		"records", stats.Records,
		"tokens", stats.Tokens,
		"gib_written", stats.GiB(),
		"hours_elapsed", stats.Hours(),
	}
	if err != nil {
		log.Warn("tokenization stopped", append(args, "error", err)...)
	} else {
		log.Info("tokenization completed", args...)
	}
	p.notify(stats, true)
	return stats, err
}

func (p *Pipeline) notify(stats Stats, final bool) {
	for _, o := range p.observers {
		o.Observe(stats, final)
	}
}
