package dataprocessing

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"taxipulse/internal/config"
	"taxipulse/internal/infrastructure"
)

// Options controls how an upload is read.
type Options struct {
	MaxUploadBytes int64
	ChunkRowCount  int
	TextEncoding   string
}

// DefaultOptions returns the stock ingestion limits.
func DefaultOptions() Options {
	return Options{
		MaxUploadBytes: config.DefaultMaxUploadBytes,
		ChunkRowCount:  config.DefaultChunkRowCount,
		TextEncoding:   config.DefaultTextEncoding,
	}
}

// OptionsFromConfig converts the ingestion section of the configuration.
func OptionsFromConfig(cfg config.IngestionConfig) Options {
	opts := Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		ChunkRowCount:  cfg.ChunkRowCount,
		TextEncoding:   cfg.TextEncoding,
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = d.MaxUploadBytes
	}
	if o.ChunkRowCount <= 0 {
		o.ChunkRowCount = d.ChunkRowCount
	}
	if o.TextEncoding == "" {
		o.TextEncoding = d.TextEncoding
	}
	return o
}

// Loader turns uploaded CSV bytes into TripTables.
type Loader struct {
	opts    Options
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
	tracer  trace.Tracer
}

// NewLoader creates a loader. A nil metrics value records nothing.
func NewLoader(opts Options, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Loader {
	return &Loader{
		opts:    opts.withDefaults(),
		logger:  infrastructure.WithComponent(logger, "loader"),
		metrics: metrics,
		tracer:  otel.Tracer(infrastructure.InstrumentationName),
	}
}

// Options returns the effective loader options.
func (l *Loader) Options() Options { return l.opts }

// Load reads r into a TripTable. On failure it returns an *IngestionError
// (or the context error) and no table.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*TripTable, error) {
	ctx, span := l.tracer.Start(ctx, "dataprocessing.Load")
	defer span.End()

	start := time.Now()
	table, err := l.load(ctx, r)

	failure := ""
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		failure = ingErr.Kind.String()
	} else if err != nil {
		failure = "Canceled"
	}

	if err != nil {
		infrastructure.RecordError(ctx, err)
		l.metrics.RecordLoad(ctx, 0, 0, time.Since(start), failure)
		l.logger.WarnContext(ctx, "upload rejected",
			slog.String("kind", failure),
			slog.String("error", err.Error()))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("rows", table.Rows()),
		attribute.Int("skipped_lines", table.SkippedLines()),
	)
	l.metrics.RecordLoad(ctx, table.Rows(), table.SkippedLines(), time.Since(start), "")
	l.logger.InfoContext(ctx, "trip table loaded",
		slog.Int("rows", table.Rows()),
		slog.Int("skipped_lines", table.SkippedLines()),
		slog.Bool("has_duration", table.HasDuration()),
		slog.Duration("duration", time.Since(start)))
	return table, nil
}

func (l *Loader) load(ctx context.Context, r io.Reader) (*TripTable, error) {
	raw, err := io.ReadAll(io.LimitReader(r, l.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, &IngestionError{Kind: DecodeError, Message: "read upload", Err: err}
	}
	if int64(len(raw)) > l.opts.MaxUploadBytes {
		return nil, &IngestionError{
			Kind:    SizeExceeded,
			Message: fmt.Sprintf("upload exceeds %d bytes", l.opts.MaxUploadBytes),
		}
	}

	text, err := decodeText(raw, l.opts.TextEncoding)
	if err != nil {
		return nil, &IngestionError{Kind: DecodeError, Message: "decode text", Err: err}
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &IngestionError{Kind: EmptyResult, Message: "input has no header"}
		}
		return nil, &IngestionError{Kind: DecodeError, Message: "read header", Err: err}
	}
	header = normalizeHeader(header)

	var (
		frame   dataframe.DataFrame
		chunks  int
		rows    int
		skipped int
	)

	cells := newChunk(len(header), l.opts.ChunkRowCount)
	flush := func() error {
		if len(cells[0]) == 0 {
			return nil
		}
		chunk := chunkFrame(header, cells)
		if chunks == 0 {
			frame = chunk
		} else {
			frame = frame.RBind(chunk)
		}
		if frame.Err != nil {
			return &IngestionError{Kind: DecodeError, Message: "concatenate chunks", Err: frame.Err}
		}
		chunks++
		cells = newChunk(len(header), l.opts.ChunkRowCount)
		return ctx.Err()
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return nil, &IngestionError{Kind: DecodeError, Message: "read record", Err: err}
		}
		if len(record) != len(header) {
			skipped++
			continue
		}

		for i, v := range record {
			cells[i] = append(cells[i], strings.TrimSpace(v))
		}
		rows++

		if len(cells[0]) >= l.opts.ChunkRowCount {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if rows == 0 {
		return nil, &IngestionError{
			Kind:    EmptyResult,
			Message: fmt.Sprintf("no usable rows (%d skipped)", skipped),
		}
	}

	l.logger.DebugContext(ctx, "csv parsed",
		slog.Int("chunks", chunks),
		slog.Int("rows", rows),
		slog.Int("skipped_lines", skipped))

	return newTripTable(frame, skipped), nil
}

// newTripTable parses the timestamp columns and derives durations.
func newTripTable(frame dataframe.DataFrame, skipped int) *TripTable {
	t := &TripTable{frame: frame, skipped: skipped}
	names := frame.Names()

	if slices.Contains(names, ColPickup) {
		t.pickup = parseTimestamps(frame.Col(ColPickup).Records())
	}
	if slices.Contains(names, ColDropoff) {
		t.dropoff = parseTimestamps(frame.Col(ColDropoff).Records())
	}
	if t.pickup != nil && t.dropoff != nil {
		t.duration = deriveDurations(t.pickup, t.dropoff)
	}
	return t
}

func newChunk(columns, capacity int) [][]string {
	if capacity > 4096 {
		capacity = 4096
	}
	cells := make([][]string, columns)
	for i := range cells {
		cells[i] = make([]string, 0, capacity)
	}
	return cells
}

func chunkFrame(header []string, cells [][]string) dataframe.DataFrame {
	cols := make([]series.Series, len(header))
	for i, name := range header {
		cols[i] = series.New(cells[i], series.String, name)
	}
	return dataframe.New(cols...)
}

// normalizeHeader trims names and makes empty or repeated names unique.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}
