// Package app wires the license service together: configuration, logging,
// the SQLite store, the lifecycle engine, the backup manager, and the HTTP
// router. The cmd binaries stay thin; everything they need comes from
// NewApplication.
package app
