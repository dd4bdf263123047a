// Package cmd implements the command-line interface for the folio record
// store. It provides a hierarchical command structure with operations for
// inspecting and manipulating records and their time series.
//
// The package is organized into several subpackages:
//
//   - db: Commands for record operations (info, get, read, add, remove, perf)
//   - his: Commands for history operations (read, write, clear)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See foliodb -help for a list of all commands.
package cmd
