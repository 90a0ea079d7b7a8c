package helper

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // sqlite driver
)

// ReadersTableDDL creates the table backing the library example's Reader entity.
const ReadersTableDDL = `CREATE TABLE readers (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	email  TEXT NOT NULL,
	status TEXT NOT NULL
)`

// ReaderRow is one row of the readers table.
type ReaderRow struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Status string
}

// GivenUniqueID generates a unique UUID for testing.
func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	assert.NoError(t, err, "error in arranging test data")

	return id
}

// OpenSQLiteDB opens a file backed SQLite database in a temp dir, closed at test cleanup.
func OpenSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "specquery.db"))
	require.NoError(t, err, "error in arranging test database")

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// OpenSQLiteDBWithReaders opens a SQLite database and creates the readers table.
func OpenSQLiteDBWithReaders(t testing.TB) *sql.DB {
	t.Helper()

	db := OpenSQLiteDB(t)
	_, err := db.ExecContext(context.Background(), ReadersTableDDL)
	require.NoError(t, err, "error in arranging readers table")

	return db
}

// GivenReaders inserts rows into the readers table.
func GivenReaders(t testing.TB, db *sql.DB, rows ...ReaderRow) {
	t.Helper()

	for _, row := range rows {
		_, err := db.ExecContext(
			context.Background(),
			`INSERT INTO readers (id, name, email, status) VALUES (?, ?, ?, ?)`,
			row.ID.String(), row.Name, row.Email, row.Status,
		)
		require.NoError(t, err, "error in arranging reader %s", row.ID)
	}
}

// FixtureReader returns an active reader with a unique id and email.
func FixtureReader(t testing.TB, name string) ReaderRow {
	id := GivenUniqueID(t)

	return ReaderRow{
		ID:     id,
		Name:   name,
		Email:  id.String() + "@library.test",
		Status: "active",
	}
}
