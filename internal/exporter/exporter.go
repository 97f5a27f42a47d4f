package exporter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taxipulse/internal/config"
	"taxipulse/internal/dataprocessing"
	apperrors "taxipulse/internal/errors"
	"taxipulse/internal/infrastructure"
)

var errNoTables = errors.New("no tables to export")

// Exporter writes analysis results as CSV, XLSX or PDF files.
type Exporter struct {
	paths  *config.Paths
	csvBOM bool
	logger *slog.Logger
}

// NewExporter creates an exporter that saves files under paths.ExportsDir.
func NewExporter(paths *config.Paths, cfg config.ExportConfig, logger *slog.Logger) *Exporter {
	return &Exporter{
		paths:  paths,
		csvBOM: cfg.CSVBOM,
		logger: infrastructure.WithComponent(logger, "exporter"),
	}
}

// Write renders tables to w in the given format.
func (e *Exporter) Write(w io.Writer, format Format, title string, tables ...*dataprocessing.FlatTable) error {
	var err error
	switch format {
	case FormatCSV:
		err = WriteCSV(w, CSVOptions{BOMPrefix: e.csvBOM}, tables...)
	case FormatXLSX:
		err = WriteXLSX(w, tables...)
	case FormatPDF:
		err = WritePDF(w, title, tables...)
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return apperrors.NewExportError(fmt.Sprintf("%s export failed", format), err).
			WithContext("tables", len(tables))
	}
	return nil
}

// WriteResults flattens results and renders them to w.
func (e *Exporter) WriteResults(w io.Writer, format Format, title string, results ...*dataprocessing.Result) error {
	tables := make([]*dataprocessing.FlatTable, 0, len(results))
	for _, r := range results {
		tables = append(tables, r.Flatten())
	}
	return e.Write(w, format, title, tables...)
}

// SaveResults writes results to a new file in the exports directory and
// returns its path. The file is written to a temporary name first and
// renamed once complete. An existing export is never replaced: a numeric
// suffix is added until the name is free.
func (e *Exporter) SaveResults(name string, format Format, title string, results ...*dataprocessing.Result) (string, error) {
	if e.paths == nil {
		return "", apperrors.NewConfigError("exports directory is not configured", nil)
	}
	if err := os.MkdirAll(e.paths.ExportsDir, 0755); err != nil {
		return "", apperrors.NewStorageError("failed to create exports directory", err)
	}

	tmp, err := os.CreateTemp(e.paths.ExportsDir, ".export-*")
	if err != nil {
		return "", apperrors.NewStorageError("failed to create export file", err)
	}
	defer os.Remove(tmp.Name())

	if err := e.WriteResults(tmp, format, title, results...); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.NewStorageError("failed to close export file", err)
	}

	path, err := reservePath(e.paths.ExportsDir, FileName(name, format, time.Now()))
	if err != nil {
		return "", apperrors.NewStorageError("failed to reserve export file name", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(path)
		return "", apperrors.NewStorageError("failed to move export file", err)
	}

	e.logger.Info("export written",
		slog.String("path", path),
		slog.String("format", string(format)),
		slog.Int("tables", len(results)))
	return path, nil
}

const maxNameAttempts = 1000

// reservePath creates an empty placeholder for name in dir, or for
// name with a _2, _3, ... suffix when it is taken, and returns its path.
func reservePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxNameAttempts; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return path, f.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", name, maxNameAttempts)
}

// FileName builds a download or report file name from a base name. The
// extension of base is dropped; qualifiers are appended after it.
func FileName(base string, format Format, now time.Time, qualifiers ...string) string {
	return fmt.Sprintf("%s_%s%s", Stem(base, qualifiers...), now.Format("20060102_150405"), format.Extension())
}

// Stem returns the file-safe name of base without its extension,
// followed by the qualifiers. The result contains no dots.
func Stem(base string, qualifiers ...string) string {
	stem := sanitizeName(strings.TrimSuffix(filepath.Base(base), filepath.Ext(base)))
	if stem == "" || stem == "_" {
		stem = "taxipulse"
	}
	for _, q := range qualifiers {
		if q = sanitizeName(q); q != "" {
			stem += "_" + q
		}
	}
	return stem
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
