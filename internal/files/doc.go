// Package files scans and archives the watch inbox.
//
// Discovery lists candidate CSV files in a directory, oldest first.
// Manager moves handled files out of the inbox into processed/ or
// failed/ so a restart does not ingest them twice.
package files
