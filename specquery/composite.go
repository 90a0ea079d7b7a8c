package specquery

import (
	"reflect"
	"slices"
)

// Where returns spec, or a specification without restriction if spec is nil.
func Where(spec Specification) Specification {
	if isNilSpecification(spec) {
		return SpecificationFunc(func(_ Root, _ *CriteriaQuery, cb CriteriaBuilder) (Predicate, error) {
			return cb.Conjunction(), nil
		})
	}

	return spec
}

// AllOf matches when every specification matches.
//
// It sanitizes the input by removing nil specifications; with none left it restricts nothing.
func AllOf(spec Specification, specs ...Specification) Specification {
	all := sanitizeSpecifications(spec, specs...)

	return SpecificationFunc(func(root Root, query *CriteriaQuery, cb CriteriaBuilder) (Predicate, error) {
		predicates, err := toPredicates(all, root, query, cb)
		if err != nil {
			return nil, err
		}

		return cb.And(predicates...), nil
	})
}

// AnyOf matches when at least one specification matches.
//
// It sanitizes the input by removing nil specifications; with none left it restricts nothing.
func AnyOf(spec Specification, specs ...Specification) Specification {
	all := sanitizeSpecifications(spec, specs...)

	return SpecificationFunc(func(root Root, query *CriteriaQuery, cb CriteriaBuilder) (Predicate, error) {
		predicates, err := toPredicates(all, root, query, cb)
		if err != nil {
			return nil, err
		}

		if len(predicates) == 0 {
			return cb.Conjunction(), nil
		}

		return cb.Or(predicates...), nil
	})
}

// Not negates spec.
func Not(spec Specification) Specification {
	return SpecificationFunc(func(root Root, query *CriteriaQuery, cb CriteriaBuilder) (Predicate, error) {
		if isNilSpecification(spec) {
			return nil, ErrNilPredicate
		}

		predicate, err := spec.ToPredicate(root, query, cb)
		if err != nil {
			return nil, err
		}

		if predicate == nil {
			return nil, ErrNilPredicate
		}

		return cb.Not(predicate), nil
	})
}

// AttributeEquals matches entities whose attribute equals value.
func AttributeEquals(attribute string, value any) Specification {
	return SpecificationFunc(func(root Root, _ *CriteriaQuery, _ CriteriaBuilder) (Predicate, error) {
		column, err := root.Attribute(attribute)
		if err != nil {
			return nil, err
		}

		return column.Eq(value), nil
	})
}

// AttributeIn matches entities whose attribute equals any of the values.
func AttributeIn(attribute string, value any, values ...any) Specification {
	all := append([]any{value}, values...)

	return SpecificationFunc(func(root Root, _ *CriteriaQuery, _ CriteriaBuilder) (Predicate, error) {
		column, err := root.Attribute(attribute)
		if err != nil {
			return nil, err
		}

		return column.In(all...), nil
	})
}

// AttributeIsNull matches entities whose attribute is NULL.
func AttributeIsNull(attribute string) Specification {
	return SpecificationFunc(func(root Root, _ *CriteriaQuery, _ CriteriaBuilder) (Predicate, error) {
		column, err := root.Attribute(attribute)
		if err != nil {
			return nil, err
		}

		return column.IsNull(), nil
	})
}

func toPredicates(specs []Specification, root Root, query *CriteriaQuery, cb CriteriaBuilder) ([]Predicate, error) {
	predicates := make([]Predicate, 0, len(specs))

	for _, spec := range specs {
		predicate, err := spec.ToPredicate(root, query, cb)
		if err != nil {
			return nil, err
		}

		if predicate == nil {
			return nil, ErrNilPredicate
		}

		predicates = append(predicates, predicate)
	}

	return predicates, nil
}

func sanitizeSpecifications(spec Specification, specs ...Specification) []Specification {
	all := append([]Specification{spec}, specs...)
	all = slices.DeleteFunc(all, isNilSpecification)

	return slices.Clip(all)
}

// isNilSpecification also catches typed nils such as a nil SpecificationFunc.
func isNilSpecification(spec Specification) bool {
	if spec == nil {
		return true
	}

	v := reflect.ValueOf(spec)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}
