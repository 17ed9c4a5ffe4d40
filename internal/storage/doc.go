// Package storage persists group rosters and the audit log.
//
// Drivers:
//   - "file": groups as a flat name -> members JSON object written atomically,
//     audit entries appended as JSON Lines next to it
//   - "sqlite": a single SQLite database (modernc.org/sqlite, no cgo)
//   - "none" or empty: in-memory only, nothing survives a restart
//
// Reminder events themselves are never persisted.
package storage
