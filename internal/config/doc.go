// Package config provides configuration management for TaxiPulse.
//
// # Configuration Sources
//
// Configuration is assembled in the following order, later sources winning:
//
//	1. Default values (Default)
//	2. A YAML file (config.yaml, configs/config.yaml or $TAXIPULSE_CONFIG)
//	3. Environment variables prefixed with TAXIPULSE_
//
// # Environment Variables
//
// Nested sections map to underscore separated names:
//
//	TAXIPULSE_SERVER_PORT=8080
//	TAXIPULSE_INGESTION_MAX_UPLOAD_BYTES=102400
//	TAXIPULSE_INGESTION_CHUNK_ROW_COUNT=50000
//	TAXIPULSE_INGESTION_TEXT_ENCODING=permissive
//	TAXIPULSE_LOGGING_LEVEL=debug
//	TAXIPULSE_WATCH_ENABLED=true
//
// # YAML File
//
//	server:
//	  port: 8080
//	  read_timeout: 15s
//	ingestion:
//	  max_upload_bytes: 102400
//	  chunk_row_count: 50000
//	  text_encoding: permissive
//	export:
//	  default_format: xlsx
//
// # Paths
//
// Paths resolves every directory the application writes to (uploads,
// exports, watch inbox and logs) relative to a base directory, which
// defaults to the directory of the running executable.
package config
