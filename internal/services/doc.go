// Package services holds the application layer between HTTP handlers and
// the trip-table core.
//
// DatasetService turns uploads into registered datasets and runs analyses
// on them:
//
//	info, err := svc.Upload(ctx, "jan.csv", r)
//	res, err := svc.Analyze(ctx, info.ID, dataprocessing.AnalysisRequest{Kind: dataprocessing.KindBusiestHours})
//
// Datasets live in an in-memory Registry bounded by capacity and an idle
// TTL. The last table built for an exact input is memoized by content hash,
// and concurrent uploads of identical bytes share one load. Batch analyses
// run concurrently and report failures per item.
//
// HealthService backs the health, readiness and liveness endpoints.
package services
