// Package watch ingests CSV files dropped into an inbox directory.
//
// Each new file is loaded through the dataset service, the full analysis
// catalog is run and a report is written to the exports directory. The
// file is then moved to the inbox's processed/ or failed/ folder and the
// outcome is published as a watch.report or watch.failed event.
package watch
