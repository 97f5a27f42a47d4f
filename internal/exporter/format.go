package exporter

import (
	"fmt"
	"strings"

	"taxipulse/internal/config"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = config.ExportFormatCSV
	FormatXLSX Format = config.ExportFormatXLSX
	FormatPDF  Format = config.ExportFormatPDF
)

// ParseFormat accepts csv, xlsx or pdf in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}
