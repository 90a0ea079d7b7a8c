// Package helper provides shared test infrastructure: SQLite fixtures for the readers table and
// spies for the specquery observability interfaces.
package helper
