// Package database opens the connections behind the flush archive.
//
// PostgreSQL is reached through a pgx pool; SQLite uses the pure-Go
// modernc driver so the dashboard binary stays cgo-free.
package database
