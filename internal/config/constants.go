package config

import "time"

// Application constants
const (
	AppName    = "TaxiPulse"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces every environment variable, e.g. TAXIPULSE_SERVER_PORT.
	EnvPrefix = "TAXIPULSE"

	// ConfigFileEnv points Load at an explicit YAML file.
	ConfigFileEnv = "TAXIPULSE_CONFIG"
)

// Ingestion defaults
const (
	DefaultMaxUploadBytes int64 = 100 * 1024 // 100 KiB
	DefaultChunkRowCount        = 50000
	DefaultTextEncoding         = "permissive"
)

// Dataset registry defaults
const (
	DefaultDatasetCapacity = 16
	DefaultDatasetIdleTTL  = 30 * time.Minute
)

// File paths (relative to the base directory)
const (
	DefaultDataDir    = "data"
	DefaultUploadsDir = "data/uploads"
	DefaultExportsDir = "data/exports"
	DefaultInboxDir   = "data/inbox"
	DefaultLogsDir    = "logs"
	DefaultLogFile    = "logs/taxipulse.log"
)

// Export formats
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
	ExportFormatPDF  = "pdf"
)

// SupportedEncodings lists the textEncoding values the loader understands.
var SupportedEncodings = []string{"permissive", "utf-8", "latin1", "windows-1252"}

// SupportedExportFormats lists the export formats the exporter can write.
var SupportedExportFormats = []string{ExportFormatCSV, ExportFormatXLSX, ExportFormatPDF}
