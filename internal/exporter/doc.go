// Package exporter writes analysis result tables to files.
//
// Three formats are supported:
//
// CSV: encoding/csv with an optional UTF-8 BOM for Excel compatibility.
//
// XLSX: one worksheet per table via excelize, bold frozen header row,
// numeric cells stored as numbers.
//
// PDF: one A4 page per table via gofpdf, landscape for wide tables such as
// the weekday/hour heatmap.
//
// Example usage:
//
//	exp := exporter.NewExporter(paths, cfg.Export, logger)
//	err := exp.WriteResults(w, exporter.FormatXLSX, "Busiest hours", result)
//
//	// Or save a multi-table report under the exports directory
//	path, err := exp.SaveResults("yellow_tripdata", exporter.FormatPDF, "Trip report", results...)
package exporter
