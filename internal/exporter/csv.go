package exporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"taxipulse/internal/dataprocessing"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures CSV writing behavior
type CSVOptions struct {
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes the tables to w. Several tables are separated by a blank
// line and each is preceded by its title.
func WriteCSV(w io.Writer, opts CSVOptions, tables ...*dataprocessing.FlatTable) error {
	if len(tables) == 0 {
		return errNoTables
	}

	if opts.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	for i, table := range tables {
		if len(tables) > 1 {
			if i > 0 {
				if err := writer.Write(nil); err != nil {
					return fmt.Errorf("failed to write separator: %w", err)
				}
			}
			if err := writer.Write([]string{table.Title}); err != nil {
				return fmt.Errorf("failed to write title: %w", err)
			}
		}

		if len(table.Header) > 0 {
			if err := writer.Write(table.Header); err != nil {
				return fmt.Errorf("failed to write headers: %w", err)
			}
		}
		for j, record := range table.Rows {
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write record %d: %w", j, err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}
