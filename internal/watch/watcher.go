package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"taxipulse/internal/config"
	"taxipulse/internal/exporter"
	"taxipulse/internal/files"
	"taxipulse/internal/infrastructure"
	"taxipulse/internal/services"
	"taxipulse/internal/validation"
	ws "taxipulse/internal/websocket"
)

const (
	defaultDebounce = 500 * time.Millisecond
	queueSize       = 64
)

// Ingestor loads a CSV and writes its report
type Ingestor interface {
	Upload(ctx context.Context, name string, r io.Reader) (services.DatasetInfo, error)
	BuildReport(ctx context.Context, id string, format exporter.Format) (*services.Report, error)
}

// Outcome describes one handled inbox file
type Outcome struct {
	File      string `json:"file"`
	DatasetID string `json:"dataset_id,omitempty"`
	Report    string `json:"report,omitempty"`
	Analyses  int    `json:"analyses,omitempty"`
	Archived  string `json:"archived,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Watcher turns inbox files into reports
type Watcher struct {
	dir       string
	format    exporter.Format
	debounce  time.Duration
	ingest    Ingestor
	publisher services.EventPublisher
	validator *validation.FileValidator
	discovery *files.Discovery
	archive   *files.Manager
	logger    *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	queue  chan string
}

// New creates a watcher for inbox. publisher and validator may be nil.
func New(cfg config.WatchConfig, inbox string, ingest Ingestor, publisher services.EventPublisher,
	validator *validation.FileValidator, logger *slog.Logger) (*Watcher, error) {
	format := exporter.FormatXLSX
	if cfg.Format != "" {
		var err error
		if format, err = exporter.ParseFormat(cfg.Format); err != nil {
			return nil, fmt.Errorf("watch format: %w", err)
		}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger = infrastructure.WithComponent(logger, "watcher")
	if validator == nil {
		validator = validation.NewFileValidator(0, logger)
	}

	return &Watcher{
		dir:       inbox,
		format:    format,
		debounce:  debounce,
		ingest:    ingest,
		publisher: publisher,
		validator: validator,
		discovery: files.NewDiscovery(inbox),
		archive:   files.NewManager(inbox, logger),
		logger:    logger,
		timers:    make(map[string]*time.Timer),
		queue:     make(chan string, queueSize),
	}, nil
}

// Run watches the inbox until ctx is canceled. Files already present when
// Run starts are processed first, oldest first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.validator.ValidateInputDirectory(w.dir); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.logger.InfoContext(ctx, "watching inbox",
		slog.String("dir", w.dir),
		slog.String("format", string(w.format)),
		slog.Duration("debounce", w.debounce))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.work(gctx) })
	g.Go(func() error {
		w.scan(gctx)
		return w.loop(gctx, fw)
	})

	err = g.Wait()
	w.stopTimers()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) scan(ctx context.Context) {
	pending, err := w.discovery.FindCSVFiles(w.dir)
	if err != nil {
		w.logger.WarnContext(ctx, "inbox scan failed", slog.String("error", err.Error()))
		return
	}
	for _, f := range pending {
		w.enqueue(ctx, f.Path)
	}
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !files.IsCandidate(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ctx, ev.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "watcher error", slog.String("error", err.Error()))
		}
	}
}

// schedule queues path once it has been quiet for the debounce period.
// Writes still in progress keep pushing the deadline back.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.enqueue(ctx, path)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	select {
	case w.queue <- path:
	case <-ctx.Done():
	}
}

func (w *Watcher) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path := <-w.queue:
			w.handle(ctx, path)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// already archived by an earlier event for the same file
		return
	}

	out, err := w.Process(ctx, path)
	if err != nil && ctx.Err() != nil {
		// shutting down; the file is picked up again on the next start
		return
	}

	archived, archiveErr := w.archive.Archive(path, err == nil)
	if archiveErr != nil {
		w.logger.ErrorContext(ctx, "inbox archive failed",
			slog.String("file", path),
			slog.String("error", archiveErr.Error()))
	}
	out.Archived = archived

	if err != nil {
		out.Error = err.Error()
		w.logger.WarnContext(ctx, "inbox file failed",
			slog.String("file", out.File),
			slog.String("error", out.Error))
		w.publish(ctx, ws.EventWatchFailed, out)
		return
	}

	w.logger.InfoContext(ctx, "inbox report written",
		slog.String("file", out.File),
		slog.String("dataset_id", out.DatasetID),
		slog.String("report", out.Report))
	w.publish(ctx, ws.EventWatchReport, out)
}

// Process loads one file and writes its report. The file is left in place.
func (w *Watcher) Process(ctx context.Context, path string) (Outcome, error) {
	out := Outcome{File: filepath.Base(path)}

	if err := w.validator.ValidateCSVFile(path); err != nil {
		return out, err
	}

	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()

	info, err := w.ingest.Upload(ctx, out.File, f)
	if err != nil {
		return out, err
	}
	out.DatasetID = info.ID

	report, err := w.ingest.BuildReport(ctx, info.ID, w.format)
	if err != nil {
		return out, err
	}
	out.Report = report.Path
	out.Analyses = len(report.Items)
	return out, nil
}

func (w *Watcher) publish(ctx context.Context, eventType string, out Outcome) {
	if w.publisher != nil {
		w.publisher.Publish(ctx, eventType, out)
	}
}
