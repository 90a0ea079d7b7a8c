package specquery

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrInvalidArgument is returned when a call receives an argument it cannot work with,
	// most notably a value that is not a Specification.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptyResult is matched by *EmptyResultError.
	ErrEmptyResult = errors.New("empty result")

	// ErrMultiplicityViolation is matched by *IncorrectResultSizeError.
	ErrMultiplicityViolation = errors.New("incorrect result size")

	// ErrConversionFailed is matched by *ConversionError.
	ErrConversionFailed = errors.New("conversion failed")

	ErrBuildingPredicateFailed = errors.New("building predicate failed")
	ErrNilPredicate            = errors.New("specification returned a nil predicate")
	ErrUnknownAttribute        = errors.New("unknown attribute")
	ErrNoRootEntity            = errors.New("no root entity")
	ErrDuplicateEntity         = errors.New("duplicate entity")
	ErrEmptyEntityName         = errors.New("empty entity name supplied")
	ErrEmptyTableName          = errors.New("empty table name supplied")
	ErrInvalidEntityPrototype  = errors.New("entity prototype must be a struct with at least one mapped field")
	ErrNilConverter            = errors.New("converter must not be nil")
	ErrNilEntityResolver       = errors.New("root entity resolver must not be nil")
	ErrNilResolver             = errors.New("resolver must not be nil")
	ErrUnsupportedOperations   = errors.New("repository operations must implement specquery.QueryContextProvider")
	ErrNilDatabaseConnection   = errors.New("database connection must not be nil")
	ErrBuildingQueryFailed     = errors.New("building query failed")
	ErrQueryingFailed          = errors.New("querying failed")
	ErrScanningDBRowFailed     = errors.New("scanning db row failed")
	ErrUnsupportedDialect      = errors.New("unsupported sql dialect")
)

// EmptyResultError reports that a required single result was not found.
type EmptyResultError struct {
	ExpectedSize int
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: expected %d, actual 0", ErrEmptyResult.Error(), e.ExpectedSize)
}

// Is makes errors.Is(err, ErrEmptyResult) work.
func (e *EmptyResultError) Is(target error) bool {
	return target == ErrEmptyResult
}

// IncorrectResultSizeError reports that more rows matched than a single-result query permits.
// ActualSize is a lower bound when the query context limited its fetch.
type IncorrectResultSizeError struct {
	ExpectedSize int
	ActualSize   int
}

func (e *IncorrectResultSizeError) Error() string {
	return fmt.Sprintf("%s: expected %d, actual %d", ErrMultiplicityViolation.Error(), e.ExpectedSize, e.ActualSize)
}

// Is makes errors.Is(err, ErrMultiplicityViolation) work.
func (e *IncorrectResultSizeError) Is(target error) bool {
	return target == ErrMultiplicityViolation
}

// ConversionError reports that a value could not be coerced to the declared return type.
type ConversionError struct {
	Source reflect.Type
	Target reflect.Type
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("%s: cannot convert %s to %s", ErrConversionFailed.Error(), typeName(e.Source), typeName(e.Target))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Is makes errors.Is(err, ErrConversionFailed) work.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversionFailed
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	return t.String()
}
