package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"taxipulse/internal/dataprocessing"
	"taxipulse/internal/exporter"
	"taxipulse/internal/infrastructure"
	ws "taxipulse/internal/websocket"
)

// EventPublisher receives dataset and analysis events
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, interface{}) {}

// CatalogEntry describes one offered analysis
type CatalogEntry struct {
	Slug     string                     `json:"slug"`
	Title    string                     `json:"title"`
	Shape    dataprocessing.ResultShape `json:"shape"`
	DefaultN int                        `json:"default_n,omitempty"`
}

// BatchItem is the outcome of one analysis in a batch. Exactly one of
// Result and Error is set.
type BatchItem struct {
	Kind   string                 `json:"kind"`
	Result *dataprocessing.Result `json:"result,omitempty"`
	Error  *BatchError            `json:"error,omitempty"`
}

// BatchError reports a failed analysis inside a batch
type BatchError struct {
	Kind    string `json:"kind"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// ExportFile is an in-memory download
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// analysisEvent is published after every analysis
type analysisEvent struct {
	DatasetID  string  `json:"dataset_id"`
	Kind       string  `json:"kind"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

const maxBatchSize = 64

// memo is the last table built for an exact input
type memo struct {
	hash  string
	table *dataprocessing.TripTable
}

// DatasetService loads uploads into the registry and runs analyses on them
type DatasetService struct {
	loader    *dataprocessing.Loader
	registry  *Registry
	exporter  *exporter.Exporter
	publisher EventPublisher
	metrics   *infrastructure.PipelineMetrics
	tracer    trace.Tracer
	logger    *slog.Logger

	loads singleflight.Group

	memoMu sync.Mutex
	last   memo

	batchLimit int
}

// DatasetServiceOptions configures a DatasetService
type DatasetServiceOptions struct {
	Capacity   int
	IdleTTL    time.Duration
	BatchLimit int
}

// NewDatasetService wires a service. publisher and metrics may be nil.
func NewDatasetService(loader *dataprocessing.Loader, exp *exporter.Exporter, publisher EventPublisher,
	metrics *infrastructure.PipelineMetrics, opts DatasetServiceOptions, logger *slog.Logger) *DatasetService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = runtime.GOMAXPROCS(0)
	}

	s := &DatasetService{
		loader:     loader,
		exporter:   exp,
		publisher:  publisher,
		metrics:    metrics,
		tracer:     otel.Tracer(infrastructure.InstrumentationName),
		logger:     infrastructure.WithComponent(logger, "dataset_service"),
		batchLimit: opts.BatchLimit,
	}
	s.registry = NewRegistry(opts.Capacity, opts.IdleTTL, s.onEvict)
	return s
}

func (s *DatasetService) onEvict(ctx context.Context, ds *Dataset, reason string) {
	if s.metrics != nil {
		s.metrics.ActiveDatasets.Add(ctx, -1)
	}
	s.logger.InfoContext(ctx, "dataset evicted",
		slog.String("dataset_id", ds.ID),
		slog.String("reason", reason))
	s.publisher.Publish(ctx, ws.EventDatasetEvicted, map[string]string{
		"dataset_id": ds.ID,
		"reason":     reason,
	})
}

// Upload reads r, loads it into a trip table and registers a dataset.
// Identical input reuses the last table built for it, and concurrent
// uploads of the same bytes share a single load.
func (s *DatasetService) Upload(ctx context.Context, name string, r io.Reader) (DatasetInfo, error) {
	limit := s.loader.Options().MaxUploadBytes
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return DatasetInfo{}, readError(ctx, limit, err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	v, err, shared := s.loads.Do(hash, func() (interface{}, error) {
		if table := s.memoized(hash); table != nil {
			s.logger.DebugContext(ctx, "reusing memoized table", slog.String("hash", hash))
			return table, nil
		}
		table, err := s.loader.Load(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		s.remember(hash, table)
		return table, nil
	})
	if err != nil {
		return DatasetInfo{}, err
	}

	ds := s.registry.Add(ctx, name, hash, v.(*dataprocessing.TripTable))
	if s.metrics != nil {
		s.metrics.ActiveDatasets.Add(ctx, 1)
	}

	info := ds.Info()
	s.logger.InfoContext(ctx, "dataset registered",
		slog.String("dataset_id", ds.ID),
		slog.String("name", name),
		slog.Int("rows", info.Rows),
		slog.Bool("shared_load", shared))
	s.publisher.Publish(ctx, ws.EventDatasetLoaded, info)
	return info, nil
}

// readError classifies a failed upload read the way the loader does.
func readError(ctx context.Context, limit int64, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return &dataprocessing.IngestionError{
			Kind:    dataprocessing.SizeExceeded,
			Message: fmt.Sprintf("upload exceeds %d bytes", limit),
			Err:     err,
		}
	}
	return &dataprocessing.IngestionError{Kind: dataprocessing.DecodeError, Message: "read upload", Err: err}
}

func (s *DatasetService) memoized(hash string) *dataprocessing.TripTable {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	if s.last.hash == hash {
		return s.last.table
	}
	return nil
}

func (s *DatasetService) remember(hash string, table *dataprocessing.TripTable) {
	s.memoMu.Lock()
	s.last = memo{hash: hash, table: table}
	s.memoMu.Unlock()
}

// Get returns a registered dataset
func (s *DatasetService) Get(ctx context.Context, id string) (*Dataset, error) {
	ds, ok := s.registry.Get(ctx, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	return ds, nil
}

// Info returns the summary of a registered dataset
func (s *DatasetService) Info(ctx context.Context, id string) (DatasetInfo, error) {
	ds, err := s.Get(ctx, id)
	if err != nil {
		return DatasetInfo{}, err
	}
	return ds.Info(), nil
}

// List returns every registered dataset
func (s *DatasetService) List(ctx context.Context) []DatasetInfo {
	return s.registry.List(ctx)
}

// Delete discards a dataset
func (s *DatasetService) Delete(ctx context.Context, id string) error {
	if _, ok := s.registry.Remove(id); !ok {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if s.metrics != nil {
		s.metrics.ActiveDatasets.Add(ctx, -1)
	}
	s.logger.InfoContext(ctx, "dataset deleted", slog.String("dataset_id", id))
	s.publisher.Publish(ctx, ws.EventDatasetDeleted, map[string]string{"dataset_id": id})
	return nil
}

// Catalog lists the offered analyses in display order
func (s *DatasetService) Catalog() []CatalogEntry {
	kinds := dataprocessing.Kinds()
	out := make([]CatalogEntry, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, CatalogEntry{Slug: k.Slug(), Title: k.Title(), Shape: k.Shape(), DefaultN: k.DefaultN()})
	}
	return out
}

// Analyze runs one analysis on a registered dataset
func (s *DatasetService) Analyze(ctx context.Context, id string, req dataprocessing.AnalysisRequest) (*dataprocessing.Result, error) {
	ds, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, ds, req)
}

func (s *DatasetService) run(ctx context.Context, ds *Dataset, req dataprocessing.AnalysisRequest) (*dataprocessing.Result, error) {
	ctx, span := s.tracer.Start(ctx, "services.Analyze", trace.WithAttributes(
		attribute.String("dataset_id", ds.ID),
		attribute.String("kind", req.Kind.Slug()),
	))
	defer span.End()

	start := time.Now()
	res, err := dataprocessing.Run(ds.Table, req)
	elapsed := time.Since(start)
	s.metrics.RecordAnalysis(ctx, req.Kind.Slug(), elapsed, err)

	ev := analysisEvent{
		DatasetID:  ds.ID,
		Kind:       req.Kind.Slug(),
		DurationMS: float64(elapsed.Microseconds()) / 1000,
	}
	if err != nil {
		infrastructure.RecordError(ctx, err)
		ev.Error = err.Error()
		s.logger.WarnContext(ctx, "analysis failed",
			slog.String("dataset_id", ds.ID),
			slog.String("kind", req.Kind.Slug()),
			slog.String("error", err.Error()))
		s.publisher.Publish(ctx, ws.EventAnalysisFailed, ev)
		return nil, err
	}

	s.logger.DebugContext(ctx, "analysis completed",
		slog.String("dataset_id", ds.ID),
		slog.String("kind", req.Kind.Slug()),
		slog.Duration("duration", elapsed))
	s.publisher.Publish(ctx, ws.EventAnalysisCompleted, ev)
	return res, nil
}

// AnalyzeBatch runs several analyses concurrently on one dataset. An empty
// request list runs the whole catalog. Analysis failures are reported per
// item; only a missing dataset or a canceled context fails the batch.
func (s *DatasetService) AnalyzeBatch(ctx context.Context, id string, reqs []dataprocessing.AnalysisRequest) ([]BatchItem, error) {
	ds, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.runBatch(ctx, ds, reqs)
}

func (s *DatasetService) runBatch(ctx context.Context, ds *Dataset, reqs []dataprocessing.AnalysisRequest) ([]BatchItem, error) {
	if len(reqs) > maxBatchSize {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyAnalyses, len(reqs), maxBatchSize)
	}
	if len(reqs) == 0 {
		for _, k := range dataprocessing.Kinds() {
			reqs = append(reqs, dataprocessing.AnalysisRequest{Kind: k})
		}
	}

	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchLimit)

	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i].Kind = req.Kind.Slug()
			res, err := s.run(gctx, ds, req)
			if err != nil {
				items[i].Error = toBatchError(err)
				return nil
			}
			items[i].Result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func toBatchError(err error) *BatchError {
	var anErr *dataprocessing.AnalysisError
	if errors.As(err, &anErr) {
		return &BatchError{Kind: anErr.Kind.String(), Column: anErr.Column, Message: err.Error()}
	}
	return &BatchError{Kind: "Internal", Message: err.Error()}
}

// Export runs one analysis and renders it as a downloadable file
func (s *DatasetService) Export(ctx context.Context, id string, req dataprocessing.AnalysisRequest, format exporter.Format) (*ExportFile, error) {
	ds, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.run(ctx, ds, req)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.exporter.WriteResults(&buf, format, res.Title, res); err != nil {
		return nil, err
	}
	return &ExportFile{
		Name:        exporter.FileName(ds.Name, format, time.Now(), req.Kind.Slug()),
		ContentType: format.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

// Report is the outcome of a full-catalog run saved to the exports directory
type Report struct {
	Dataset DatasetInfo `json:"dataset"`
	Path    string      `json:"path"`
	Items   []BatchItem `json:"items"`
}

// BuildReport runs the whole catalog on a dataset and saves every
// successful result into one report file.
func (s *DatasetService) BuildReport(ctx context.Context, id string, format exporter.Format) (*Report, error) {
	ds, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.runBatch(ctx, ds, nil)
	if err != nil {
		return nil, err
	}

	var results []*dataprocessing.Result
	for _, it := range items {
		if it.Result != nil {
			results = append(results, it.Result)
		}
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: every analysis failed for %s", ErrNoResults, ds.Name)
	}

	path, err := s.exporter.SaveResults(ds.Name, format, ds.Name, results...)
	if err != nil {
		return nil, err
	}
	return &Report{Dataset: ds.Info(), Path: path, Items: items}, nil
}
