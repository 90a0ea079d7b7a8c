package library

import (
	"strings"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/specquery-go/specquery"
)

// ReaderWithID matches the reader with id.
func ReaderWithID(id uuid.UUID) specquery.Specification {
	return specquery.AttributeEquals("id", id.String())
}

// ReaderWithEmail matches readers by email, ignoring surrounding whitespace and case.
func ReaderWithEmail(email string) specquery.Specification {
	return specquery.AttributeEquals("email", strings.ToLower(strings.TrimSpace(email)))
}

// ReadersWithStatus matches readers in any of the given states.
func ReadersWithStatus(status ReaderStatus, more ...ReaderStatus) specquery.Specification {
	others := make([]any, 0, len(more))
	for _, s := range more {
		others = append(others, string(s))
	}

	return specquery.AttributeIn("status", string(status), others...)
}

// ActiveReaderNamed matches active readers called name.
func ActiveReaderNamed(name string) specquery.Specification {
	return specquery.AllOf(
		ReadersWithStatus(ReaderStatusActive),
		specquery.SpecificationFunc(func(root specquery.Root, _ *specquery.CriteriaQuery, cb specquery.CriteriaBuilder) (specquery.Predicate, error) {
			column, err := root.Attribute("Name")
			if err != nil {
				return nil, err
			}

			return cb.Equal(column, name), nil
		}),
	)
}
