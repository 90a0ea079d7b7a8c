// Package library is a small userland example: a readers table, specifications over it and a
// repository whose find methods are implemented by a specquery.FindOneInterceptor.
package library

import (
	"github.com/google/uuid"

	"github.com/AntonStoeckl/specquery-go/specquery"
	"github.com/AntonStoeckl/specquery-go/specquery/conversion"
)

const (
	// ReaderEntityName is the logical name the Reader entity is registered under.
	ReaderEntityName = "reader"

	// ReadersTable is the table Reader rows live in.
	ReadersTable = "readers"
)

// ReaderStatus is the membership state of a reader.
type ReaderStatus string

const (
	ReaderStatusActive   ReaderStatus = "active"
	ReaderStatusCanceled ReaderStatus = "canceled"
)

// Reader is one row of the readers table.
type Reader struct {
	ID     uuid.UUID    `db:"id"`
	Name   string       `db:"name"`
	Email  string       `db:"email"`
	Status ReaderStatus `db:"status"`
}

// ReaderView is the public projection of a Reader, without its membership state.
type ReaderView struct {
	ID    string
	Name  string
	Email string
}

// NewReaderEntityType maps Reader onto the readers table.
func NewReaderEntityType() (specquery.EntityType, error) {
	return specquery.NewEntityType(ReaderEntityName, ReadersTable, Reader{})
}

// RegisterConversions teaches service how to turn a matched *Reader into a ReaderView.
func RegisterConversions(service *conversion.Service) {
	conversion.AddConverter(service, func(reader *Reader) (ReaderView, error) {
		return ReaderView{
			ID:    reader.ID.String(),
			Name:  reader.Name,
			Email: reader.Email,
		}, nil
	})
}
