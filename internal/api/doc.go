// Package api implements litemodel's read-only HTTP status server.
//
// This package provides:
//   - GET /api/v1/health: health of the engine and optional MQTT/InfluxDB links
//   - GET /api/v1/pool: a pool.Stats snapshot
//   - GET /api/v1/tables: schemas of every created model
//   - GET /api/v1/tables/{name}: one schema plus its row count
//   - Middleware stack (request ID, logging, recovery)
//
// Errors use a JSON envelope:
//
//	{"status":404,"code":"not_found","message":"table \"posts\" is not registered"}
//
// The server never mutates data; writes go through the model package.
package api
