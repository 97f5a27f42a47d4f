// Package app wires the taxipulse service together and manages its lifecycle.
//
// NewApplication resolves paths, initializes OpenTelemetry, starts the
// websocket hub and builds the dataset and health services, the optional
// inbox watcher and the chi router. Serve runs the HTTP server and the
// watcher until its context is canceled, then shuts down gracefully:
//
//	a, err := app.NewApplication(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return a.Run() // blocks until SIGINT or SIGTERM
package app
