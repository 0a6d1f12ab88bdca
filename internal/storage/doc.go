package storage

// Package storage persists the manifest registry across restarts.
//
// Both drivers implement the same full-snapshot contract:
//   - "file": one JSON document, written atomically (temp + rename)
//   - "sqlite": one table, replaced per save inside a transaction
