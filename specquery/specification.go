package specquery

import (
	"fmt"
	"reflect"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// Predicate is a boolean SQL expression.
type Predicate = exp.Expression

// Specification is a predicate factory over an entity's queryable shape.
type Specification interface {
	ToPredicate(root Root, query *CriteriaQuery, cb CriteriaBuilder) (Predicate, error)
}

// SpecificationFunc adapts a plain function to Specification.
type SpecificationFunc func(root Root, query *CriteriaQuery, cb CriteriaBuilder) (Predicate, error)

func (f SpecificationFunc) ToPredicate(root Root, query *CriteriaQuery, cb CriteriaBuilder) (Predicate, error) {
	return f(root, query, cb)
}

/***** Root *****/

// Root references the entity a query selects from.
type Root struct {
	entity EntityType
}

func (r Root) Entity() EntityType {
	return r.entity
}

// Attribute returns the table qualified column for attribute (column name or Go field name).
func (r Root) Attribute(attribute string) (exp.IdentifierExpression, error) {
	column, ok := r.entity.Column(attribute)
	if !ok {
		return nil, fmt.Errorf("%w: %q on entity %s", ErrUnknownAttribute, attribute, r.entity.Name())
	}

	return goqu.T(r.entity.Table()).Col(column), nil
}

// Columns returns the table qualified columns of the entity in mapping order.
func (r Root) Columns() []any {
	columns := make([]any, 0, len(r.entity.columns))
	for _, column := range r.entity.columns {
		columns = append(columns, goqu.T(r.entity.Table()).Col(column))
	}

	return columns
}

/***** CriteriaQuery *****/

// CriteriaQuery is the query under construction for one resolution call.
// It is not safe for concurrent use and must not outlive the call.
type CriteriaQuery struct {
	resultType  reflect.Type
	root        *Root
	restriction Predicate
	selection   *Root
}

// NewCriteriaQuery creates an empty query producing values of resultType.
func NewCriteriaQuery(resultType reflect.Type) *CriteriaQuery {
	return &CriteriaQuery{resultType: resultType}
}

// From binds the query to entity and returns the root reference.
func (q *CriteriaQuery) From(entity EntityType) Root {
	root := Root{entity: entity}
	q.root = &root

	return root
}

// Where replaces the restriction.
func (q *CriteriaQuery) Where(predicate Predicate) *CriteriaQuery {
	q.restriction = predicate
	return q
}

// Select projects the whole entity referenced by root.
func (q *CriteriaQuery) Select(root Root) *CriteriaQuery {
	q.selection = &root
	return q
}

func (q *CriteriaQuery) ResultType() reflect.Type {
	return q.resultType
}

func (q *CriteriaQuery) Root() (Root, bool) {
	if q.root == nil {
		return Root{}, false
	}

	return *q.root, true
}

func (q *CriteriaQuery) Restriction() Predicate {
	return q.restriction
}

func (q *CriteriaQuery) Selection() (Root, bool) {
	if q.selection == nil {
		return Root{}, false
	}

	return *q.selection, true
}

/***** CriteriaBuilder *****/

// CriteriaBuilder combines and negates predicates. Comparisons are built directly on
// the identifiers returned by Root.Attribute (Eq, Neq, Gt, Like, In, IsNull, ...).
type CriteriaBuilder struct{}

const (
	alwaysTrueSQL  = "1 = 1"
	alwaysFalseSQL = "1 = 0"
)

// And drops always-true operands and collapses to Disjunction when one operand can never match.
func (cb CriteriaBuilder) And(predicates ...Predicate) Predicate {
	operands := make([]Predicate, 0, len(predicates))

	for _, predicate := range predicates {
		switch {
		case IsEmptyPredicate(predicate):
			continue
		case isAlwaysFalse(predicate):
			return cb.Disjunction()
		}

		operands = append(operands, predicate)
	}

	switch len(operands) {
	case 0:
		return cb.Conjunction()
	case 1:
		return operands[0]
	default:
		return goqu.And(operands...)
	}
}

// Or drops never-matching operands and collapses to Conjunction when one operand restricts nothing.
// Without operands it matches nothing.
func (cb CriteriaBuilder) Or(predicates ...Predicate) Predicate {
	operands := make([]Predicate, 0, len(predicates))

	for _, predicate := range predicates {
		switch {
		case IsEmptyPredicate(predicate):
			return cb.Conjunction()
		case isAlwaysFalse(predicate):
			continue
		}

		operands = append(operands, predicate)
	}

	switch len(operands) {
	case 0:
		return cb.Disjunction()
	case 1:
		return operands[0]
	default:
		return goqu.Or(operands...)
	}
}

func (cb CriteriaBuilder) Not(predicate Predicate) Predicate {
	switch {
	case IsEmptyPredicate(predicate):
		return cb.Disjunction()
	case isAlwaysFalse(predicate):
		return cb.Conjunction()
	}

	return goqu.L("NOT (?)", predicate)
}

// Conjunction is the always-true predicate.
func (CriteriaBuilder) Conjunction() Predicate {
	return goqu.L(alwaysTrueSQL)
}

// Disjunction is the always-false predicate.
func (CriteriaBuilder) Disjunction() Predicate {
	return goqu.L(alwaysFalseSQL)
}

func (CriteriaBuilder) Equal(attribute exp.IdentifierExpression, value any) Predicate {
	return attribute.Eq(value)
}

// IsEmptyPredicate reports whether predicate restricts nothing.
func IsEmptyPredicate(predicate Predicate) bool {
	if predicate == nil {
		return true
	}

	if list, ok := predicate.(exp.ExpressionList); ok {
		return len(list.Expressions()) == 0
	}

	return isLiteral(predicate, alwaysTrueSQL)
}

func isAlwaysFalse(predicate Predicate) bool {
	return predicate != nil && isLiteral(predicate, alwaysFalseSQL)
}

func isLiteral(predicate Predicate, sql string) bool {
	literal, ok := predicate.(exp.LiteralExpression)

	return ok && literal.Literal() == sql && len(literal.Args()) == 0
}
