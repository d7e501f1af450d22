// Package database provides the PostgreSQL connection pool, schema
// provisioning for the record and candle tables, and the retention sweep.
//
// All record tables are append-only time series indexed by event hour and
// (symbol, exchange); rows age out after the configured retention window.
package database
