// Package main wires the extraction pipeline end-to-end: source, parser,
// transform workers and the batched loader. This file keeps the CLI layer
// thin: it depends only on storage-agnostic interfaces and never imports
// database drivers or backend-specific packages directly.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"emailextract/internal/config"
	"emailextract/internal/datasource"
	"emailextract/internal/metrics"
	"emailextract/internal/parser"
	"emailextract/internal/storage"
	"emailextract/internal/transformer"
	"emailextract/internal/transformer/builtin"
	"emailextract/pkg/records"
)

const defaultMaxErrors = 3

// counters holds cross-goroutine statistics for one run.
type counters struct {
	read          atomic.Int64 // records produced by the parser
	parseErrors   atomic.Int64 // lines the parser could not turn into records
	processErrors atomic.Int64 // records a transform step failed on
	loaded        atomic.Int64 // records handed to the sink
	inserted      atomic.Int64 // rows the sink reports as written
	batches       atomic.Int64 // batches successfully flushed
}

// runtimeConfig contains the resolved concurrency and buffering settings for
// a run. Values come from the pipeline config with environment fallbacks.
type runtimeConfig struct {
	transformers int
	batchSize    int
	bufferSize   int
	maxErrors    int
}

// runSummary is what runStreamed reports back to the caller.
type runSummary struct {
	Read          int64
	ParseErrors   int64
	ProcessErrors int64
	Loaded        int64
	Inserted      int64
	Batches       int64
	Extract       builtin.EmailExtractStats
}

// Function variables used as test seams.
var (
	newRepositoryFn = storage.New
	newSourceFn     = datasource.New
	newParserFn     = parser.New
	ensureTableFn   = storage.EnsureTable
)

// verbose makes every soft per-record error visible as it happens instead of
// only in the aggregated summary.
var verbose bool

// runStreamed executes source → parser → N transform workers → loader.
//
// Per-record parse and transform failures are soft: they are counted,
// aggregated and summarized at the end. Any stage returning an error cancels
// the others through the errgroup context.
//
// Concurrency model:
//
//	Parser (1)
//	     → tap (counts "read")
//	     → N transform workers, each with its own step instances
//	     → Loader (batched CopyFrom)
//
// Record order is preserved end-to-end only with a single transform worker.
func runStreamed(ctx context.Context, spec config.Pipeline) (runSummary, error) {
	rt := newRuntimeConfig(spec)
	log.Printf(
		"stream runtime: transformers=%d batch=%d buffer=%d max_errors=%d",
		rt.transformers, rt.batchSize, rt.bufferSize, rt.maxErrors,
	)

	// One chain per worker; step instances carry per-run state.
	chains := make([]transformer.Chain, rt.transformers)
	for i := range chains {
		c, err := builtin.Build(spec.Transform, nil)
		if err != nil {
			return runSummary{}, fmt.Errorf("build transforms: %w", err)
		}
		chains[i] = c
	}

	t0 := time.Now()
	src, err := newSourceFn(spec.Source)
	if err != nil {
		return runSummary{}, err
	}
	rc, err := src.Open(ctx)
	metrics.RecordStep(spec.Job, "open_source", err, time.Since(t0))
	if err != nil {
		return runSummary{}, fmt.Errorf("source open: %w", err)
	}
	defer rc.Close() // the parser closes it too; repeat closes are harmless
	rd, err := newParserFn(spec.Parser, rc)
	if err != nil {
		return runSummary{}, fmt.Errorf("parser: %w", err)
	}

	in := rd.Schema()
	out := chains[0].OutputSchema(in)
	proj, err := storage.NewProjection(out, sinkColumns(spec.Storage))
	if err != nil {
		return runSummary{}, fmt.Errorf("sink columns: %w", err)
	}
	log.Printf("schema: in=%v out=%v sink=%v", in.Names(), out.Names(), proj.Columns)

	repo, err := initRepository(ctx, spec.Storage)
	if err != nil {
		return runSummary{}, err
	}
	defer repo.Close()

	if spec.Storage.DB.AutoCreateTable {
		t0 := time.Now()
		err := ensureTableFn(ctx, spec.Storage.Kind, repo, spec.Storage.DB.Table, proj.Columns)
		metrics.RecordStep(spec.Job, "ensure_table", err, time.Since(t0))
		if err != nil {
			return runSummary{}, fmt.Errorf("apply DDL: %w", err)
		}
		log.Printf("table ensured: %s", spec.Storage.DB.Table)
	}

	var stats counters
	parseAgg := newErrAgg(rt.maxErrors)
	processAgg := newErrAgg(rt.maxErrors)

	rawCh := make(chan records.Record, rt.bufferSize) // parser → tap
	tapCh := make(chan records.Record, rt.bufferSize) // tap → workers
	outCh := make(chan records.Record, rt.bufferSize) // workers → loader

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()

	// 1) Parser.
	g.Go(func() error {
		defer close(rawCh)
		t0 := time.Now()
		err := rd.Stream(gctx, rawCh, func(line int, err error) {
			stats.parseErrors.Add(1)
			parseAgg.add(line, err)
			if verbose {
				log.Printf("parse: line %d: %v", line, err)
			}
		})
		metrics.RecordStep(spec.Job, "parse", err, time.Since(t0))
		if err != nil {
			return fmt.Errorf("parse: %w", err)
		}
		return nil
	})

	// 2) Tap: count records and forward to the workers.
	g.Go(func() error {
		defer close(tapCh)
		for r := range rawCh {
			stats.read.Add(1)
			select {
			case tapCh <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// 3) Transform workers.
	onProcessErr := func(line int, err error) {
		stats.processErrors.Add(1)
		processAgg.add(line, err)
		if verbose {
			log.Printf("transform: line %d: %v", line, err)
		}
	}
	var wgWorkers sync.WaitGroup
	for _, c := range chains {
		wgWorkers.Add(1)
		g.Go(func() error {
			defer wgWorkers.Done()
			t0 := time.Now()
			err := transformer.ProcessLoop(gctx, c, in, tapCh, outCh, onProcessErr)
			metrics.RecordStep(spec.Job, "transform", err, time.Since(t0))
			return err
		})
	}
	go func() {
		wgWorkers.Wait()
		close(outCh)
	}()

	// 4) Loader.
	copyFn := func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		stats.loaded.Add(int64(len(rows)))
		n, err := repo.CopyFrom(ctx, columns, rows)
		stats.inserted.Add(n)
		metrics.RecordRow(spec.Job, metrics.KindInserted, n)
		if err == nil {
			stats.batches.Add(1)
			metrics.RecordBatches(spec.Job, 1)
		}
		return n, err
	}
	g.Go(func() error {
		t0 := time.Now()
		_, err := storage.LoadBatches(gctx, proj, outCh, rt.batchSize, copyFn)
		metrics.RecordStep(spec.Job, "load", err, time.Since(t0))
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	metrics.RecordStep(spec.Job, "run", runErr, time.Since(start))

	sum := runSummary{
		Read:          stats.read.Load(),
		ParseErrors:   stats.parseErrors.Load(),
		ProcessErrors: stats.processErrors.Load(),
		Loaded:        stats.loaded.Load(),
		Inserted:      stats.inserted.Load(),
		Batches:       stats.batches.Load(),
		Extract:       sumExtractStats(chains),
	}
	recordSummaryMetrics(spec.Job, sum)
	logErrorSummaries(parseAgg, processAgg)
	logGlobalSummary(sum)

	if runErr != nil {
		return sum, runErr
	}
	return sum, nil
}

// newRuntimeConfig resolves runtime settings from the pipeline config, then
// the environment, then defaults.
func newRuntimeConfig(spec config.Pipeline) runtimeConfig {
	return runtimeConfig{
		transformers: pickInt(spec.Runtime.TransformWorkers, getenvInt("EMAILX_TRANSFORM_WORKERS", 1)),
		batchSize:    pickInt(spec.Runtime.BatchSize, getenvInt("EMAILX_BATCH_SIZE", 5000)),
		bufferSize:   pickInt(spec.Runtime.ChannelBuffer, getenvInt("EMAILX_CH_BUFFER", 1024)),
		maxErrors:    pickInt(spec.Runtime.MaxErrors, defaultMaxErrors),
	}
}

// initRepository maps the storage config onto the backend-neutral
// storage.Config and opens the repository.
func initRepository(ctx context.Context, s config.Storage) (storage.Repository, error) {
	repo, err := newRepositoryFn(ctx, storageConfig(s))
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func storageConfig(s config.Storage) storage.Config {
	cfg := storage.Config{
		Kind:     s.Kind,
		DSN:      s.DB.DSN,
		Database: s.DB.Database,
		Table:    s.DB.Table,
	}
	if s.Kind == "csv" {
		cfg.Path = s.CSV.Path
		cfg.Header = s.CSV.Header
		cfg.Comma = ','
		if r, _ := utf8.DecodeRuneInString(s.CSV.Comma); r != utf8.RuneError {
			cfg.Comma = r
		}
	}
	return cfg
}

// sinkColumns returns the configured sink columns; empty means every output
// field in schema order.
func sinkColumns(s config.Storage) []string {
	if s.Kind == "csv" {
		return s.CSV.Columns
	}
	return s.DB.Columns
}

// sumExtractStats adds up the EmailExtract counters of every worker chain.
func sumExtractStats(chains []transformer.Chain) builtin.EmailExtractStats {
	var t builtin.EmailExtractStats
	for _, c := range chains {
		for _, e := range builtin.EmailExtractSteps(c) {
			s := e.Stats()
			t.In += s.In
			t.Emitted += s.Emitted
			t.PassThrough += s.PassThrough
			t.FanOut += s.FanOut
			t.Candidates += s.Candidates
			t.RejectedCandidates += s.RejectedCandidates
		}
	}
	return t
}

func recordSummaryMetrics(job string, s runSummary) {
	metrics.RecordRow(job, metrics.KindRead, s.Read)
	metrics.RecordRow(job, metrics.KindParseErrors, s.ParseErrors)
	metrics.RecordRow(job, metrics.KindEmitted, s.Extract.Emitted)
	metrics.RecordRow(job, metrics.KindPassThrough, s.Extract.PassThrough)
	metrics.RecordRow(job, metrics.KindFanOut, s.Extract.FanOut)
	metrics.RecordRow(job, metrics.KindCandidatesRejected, s.Extract.RejectedCandidates)
}

// logErrorSummaries prints aggregated parse and transform errors. Only the
// first N messages (per errAgg) are shown.
func logErrorSummaries(parseAgg, processAgg *errAgg) {
	for _, a := range []struct {
		what string
		agg  *errAgg
	}{
		{"parse errors", parseAgg},
		{"transform errors", processAgg},
	} {
		count, first := a.agg.snapshot()
		if count == 0 {
			continue
		}
		log.Printf("%s: %d (showing first %d)", a.what, count, len(first))
		for i, s := range first {
			log.Printf("  #%03d: %s", i+1, s)
		}
		if kinds := a.agg.kinds(); kinds < count {
			top := a.agg.top(topErrorKinds)
			log.Printf("%s by message (top %d of %d):", a.what, len(top), kinds)
			for _, b := range top {
				log.Printf("  %6d  %s", b.n, b.msg)
			}
		}
	}
}

// logGlobalSummary prints final statistics for the run.
//
// Every emitted record is either a pass-through or one copy of a fan-out:
//
//	emitted == passthrough + fanout
func logGlobalSummary(s runSummary) {
	e := s.Extract
	log.Printf(
		"summary: read=%d parse_errors=%d transform_errors=%d extract_in=%d emitted=%d passthrough=%d fanout=%d candidates=%d rejected=%d loaded=%d inserted=%d batches=%d",
		s.Read, s.ParseErrors, s.ProcessErrors,
		e.In, e.Emitted, e.PassThrough, e.FanOut, e.Candidates, e.RejectedCandidates,
		s.Loaded, s.Inserted, s.Batches,
	)
	if e.Emitted != e.PassThrough+e.FanOut {
		log.Printf(
			"WARNING: record accounting mismatch: emitted=%d passthrough+fanout=%d (delta=%d)",
			e.Emitted, e.PassThrough+e.FanOut, e.Emitted-e.PassThrough-e.FanOut,
		)
	}
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

const topErrorKinds = 5

// errAgg counts errors, keeps the first limit of them with their line, and
// tallies them by message so repeated failures collapse into one bucket.
type errAgg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

type errBucket struct {
	msg string
	n   int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

func (a *errAgg) add(line int, err error) {
	msg := err.Error()
	a.mu.Lock()
	a.buckets[msg]++
	if a.count < a.limit {
		a.first = append(a.first, fmt.Sprintf("line=%d: %s", line, msg))
	}
	a.count++
	a.mu.Unlock()
}

func (a *errAgg) snapshot() (int, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count, append([]string(nil), a.first...)
}

func (a *errAgg) kinds() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}

// top returns the n most frequent messages, most frequent first; ties are
// ordered by message.
func (a *errAgg) top(n int) []errBucket {
	a.mu.Lock()
	out := make([]errBucket, 0, len(a.buckets))
	for msg, c := range a.buckets {
		out = append(out, errBucket{msg, c})
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].msg < out[j].msg
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
