package http

import (
	"context"
	"io"

	"taxipulse/internal/dataprocessing"
	"taxipulse/internal/exporter"
	"taxipulse/internal/services"
)

// DatasetServiceInterface defines the dataset operations used by handlers
type DatasetServiceInterface interface {
	Upload(ctx context.Context, name string, r io.Reader) (services.DatasetInfo, error)
	Info(ctx context.Context, id string) (services.DatasetInfo, error)
	List(ctx context.Context) []services.DatasetInfo
	Delete(ctx context.Context, id string) error
	Catalog() []services.CatalogEntry

	Analyze(ctx context.Context, id string, req dataprocessing.AnalysisRequest) (*dataprocessing.Result, error)
	AnalyzeBatch(ctx context.Context, id string, reqs []dataprocessing.AnalysisRequest) ([]services.BatchItem, error)
	Export(ctx context.Context, id string, req dataprocessing.AnalysisRequest, format exporter.Format) (*services.ExportFile, error)
	BuildReport(ctx context.Context, id string, format exporter.Format) (*services.Report, error)
}

var _ DatasetServiceInterface = (*services.DatasetService)(nil)
