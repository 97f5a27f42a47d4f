// Package dataprocessing turns uploaded NYC taxi trip CSV files into
// immutable TripTables and computes the result tables behind the dashboard.
//
// # Architecture
//
// The package is organized into three components:
//
// 1. Loader: reads a size-capped upload in row chunks, decodes it, skips
// malformed records and parses the pickup/dropoff timestamps
// 2. TripTable: a gota column store plus parsed timestamps and the derived
// trip_duration_minutes column
// 3. Aggregator: pure queries (frequency, top-N, group share, hourly,
// weekday/hour heatmap, routes, descriptive statistics)
//
// An AnalysisKind catalog maps every dashboard analysis to one query.
//
// # Usage
//
//	loader := dataprocessing.NewLoader(dataprocessing.DefaultOptions(), logger, nil)
//	table, err := loader.Load(ctx, file)
//	if err != nil {
//	    return err // *IngestionError
//	}
//
//	result, err := dataprocessing.Run(table, dataprocessing.AnalysisRequest{
//	    Kind: dataprocessing.KindBusiestHours,
//	})
//
// # Error Handling
//
// Ingestion failures are *IngestionError (SizeExceeded, EmptyResult,
// DecodeError) and never come with a table. Analysis failures are
// *AnalysisError (ColumnNotFound, InvalidAggregationRequest); they leave the
// table valid for further analyses. Both match the Err* sentinels with
// errors.Is.
//
// Numeric cells that are missing or malformed are read as 0.
package dataprocessing
