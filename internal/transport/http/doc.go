// Package http implements the HTTP handlers of the taxipulse service.
//
// Handlers stay thin: they parse and validate requests, call the dataset
// service, and turn domain errors into RFC 7807 problem responses through
// the shared error handler. Ingestion failures map to 413 (SizeExceeded)
// and 422 (EmptyResult, DecodeError); analysis failures map to 404
// (ColumnNotFound) and 400 (InvalidAggregationRequest).
//
// Routes mounted under /api:
//
//	POST   /datasets                          upload a CSV (multipart "file" or raw body)
//	GET    /datasets                          list datasets
//	GET    /datasets/{id}                     dataset summary
//	DELETE /datasets/{id}                     discard a dataset
//	POST   /datasets/{id}/analyses            run one analysis
//	POST   /datasets/{id}/analyses/batch      run several analyses
//	GET    /datasets/{id}/export              download one result as csv, xlsx or pdf
//	POST   /datasets/{id}/report              save a full report to the exports directory
//	GET    /analyses                          analysis catalog
//	GET    /health, /health/ready, /health/live, /health/stats
//
// /metrics and /ws are mounted at the root.
package http
