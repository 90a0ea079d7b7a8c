// Package conversion provides the type coercion service used by specquery.Resolver when a
// matched entity does not already satisfy the declared return type.
//
// Conversions are tried in this order:
//   - converters registered for the exact (source, target) pair
//   - identity, when the value is assignable to the target
//   - pointer dereference (*T -> T) and address-of (T -> *T)
//   - lossless scalar conversion between numeric kinds and between string kinds
//   - encoding.TextMarshaler -> string and string -> encoding.TextUnmarshaler
//   - struct mapping through a strict JSON round trip
//
// Struct mapping refuses source fields the target cannot hold unless the service was built
// WithLenientStructMapping, so a conversion either keeps every value or fails.
package conversion

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/specquery-go/specquery"
)

var (
	// ErrNoConverter is returned when no strategy can convert the type pair.
	ErrNoConverter = errors.New("no converter found")

	// ErrNilValue is returned for nil input values.
	ErrNilValue = errors.New("cannot convert a nil value")

	// ErrLossyConversion is returned when a scalar conversion would change the value.
	ErrLossyConversion = errors.New("conversion would lose data")

	ErrStructMappingFailed = errors.New("struct mapping failed")
)

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// ConverterFunc converts a value of a registered source type.
type ConverterFunc func(value any) (any, error)

type typePair struct {
	source reflect.Type
	target reflect.Type
}

// Service is a registry-backed Converter. It is safe for concurrent use.
type Service struct {
	mu         sync.RWMutex
	converters map[typePair]ConverterFunc
	json       jsoniter.API
}

// Option configures a Service.
type Option func(*Service)

// WithLenientStructMapping lets struct mapping drop source fields the target does not declare.
func WithLenientStructMapping() Option {
	return func(s *Service) {
		s.json = jsoniter.Config{
			EscapeHTML:             true,
			SortMapKeys:            true,
			ValidateJsonRawMessage: true,
		}.Froze()
	}
}

// NewService creates a Service with strict struct mapping.
func NewService(options ...Option) *Service {
	s := &Service{
		converters: make(map[typePair]ConverterFunc),
		json: jsoniter.Config{
			EscapeHTML:             true,
			SortMapKeys:            true,
			ValidateJsonRawMessage: true,
			DisallowUnknownFields:  true,
		}.Froze(),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// Register adds a converter for the exact (source, target) pair, replacing any earlier one.
func (s *Service) Register(source reflect.Type, target reflect.Type, fn ConverterFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.converters[typePair{source: source, target: target}] = fn
}

// AddConverter registers a typed converter from S to T.
func AddConverter[S any, T any](s *Service, fn func(S) (T, error)) {
	s.Register(reflect.TypeFor[S](), reflect.TypeFor[T](), func(value any) (any, error) {
		source, ok := value.(S)
		if !ok {
			return nil, fmt.Errorf("%w: expected %s, got %T", ErrNoConverter, reflect.TypeFor[S](), value)
		}

		return fn(source)
	})
}

// CanConvert reports whether a strategy exists for the pair, without trying the struct mapping.
func (s *Service) CanConvert(source reflect.Type, target reflect.Type) bool {
	if source == nil || target == nil {
		return false
	}

	if s.registered(source, target) != nil || source.AssignableTo(target) {
		return true
	}

	if source.Kind() == reflect.Pointer && source.Elem().AssignableTo(target) {
		return true
	}

	if target.Kind() == reflect.Pointer && source.AssignableTo(target.Elem()) {
		return true
	}

	return scalarConvertible(source, target) || textConvertible(source, target)
}

// ConvertRequired converts value to target or fails; it never returns nil without an error.
func (s *Service) ConvertRequired(value any, target reflect.Type) (any, error) {
	if value == nil {
		return nil, ErrNilValue
	}

	if target == nil {
		return nil, fmt.Errorf("%w: target type is nil", ErrNoConverter)
	}

	source := reflect.TypeOf(value)

	if fn := s.registered(source, target); fn != nil {
		result, err := fn(value)
		if err != nil {
			return nil, err
		}

		if result == nil || !reflect.TypeOf(result).AssignableTo(target) {
			return nil, fmt.Errorf("%w: registered converter returned %T for %s", ErrNoConverter, result, target)
		}

		return result, nil
	}

	if source.AssignableTo(target) {
		return value, nil
	}

	v := reflect.ValueOf(value)

	if source.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, ErrNilValue
		}

		if source.Elem().AssignableTo(target) {
			return v.Elem().Interface(), nil
		}
	}

	if target.Kind() == reflect.Pointer && source.AssignableTo(target.Elem()) {
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(v)

		return ptr.Interface(), nil
	}

	if scalarConvertible(source, target) {
		return convertScalar(v, target)
	}

	if textConvertible(source, target) {
		return convertText(v, target)
	}

	if structMappable(source, target) {
		return s.mapStruct(value, target)
	}

	return nil, fmt.Errorf("%w: %s -> %s", ErrNoConverter, source, target)
}

func (s *Service) registered(source reflect.Type, target reflect.Type) ConverterFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.converters[typePair{source: source, target: target}]
}

func (s *Service) mapStruct(value any, target reflect.Type) (any, error) {
	raw, err := s.json.Marshal(value)
	if err != nil {
		return nil, errors.Join(ErrStructMappingFailed, err)
	}

	isPointer := target.Kind() == reflect.Pointer
	base := target
	if isPointer {
		base = target.Elem()
	}

	ptr := reflect.New(base)
	if err := s.json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, errors.Join(ErrStructMappingFailed, err)
	}

	if isPointer {
		return ptr.Interface(), nil
	}

	return ptr.Elem().Interface(), nil
}

func structMappable(source reflect.Type, target reflect.Type) bool {
	isStructLike := func(t reflect.Type) bool {
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}

		return t.Kind() == reflect.Struct || (t.Kind() == reflect.Map && t.Key().Kind() == reflect.String)
	}

	return isStructLike(source) && isStructLike(target)
}

func textConvertible(source reflect.Type, target reflect.Type) bool {
	if target.Kind() == reflect.String && source.Implements(textMarshalerType) {
		return true
	}

	return source.Kind() == reflect.String && reflect.PointerTo(target).Implements(textUnmarshalerType)
}

func convertText(v reflect.Value, target reflect.Type) (any, error) {
	if target.Kind() == reflect.String {
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return nil, err
		}

		return reflect.ValueOf(string(text)).Convert(target).Interface(), nil
	}

	ptr := reflect.New(target)
	if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.String())); err != nil {
		return nil, err
	}

	return ptr.Elem().Interface(), nil
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func scalarConvertible(source reflect.Type, target reflect.Type) bool {
	s, t := source.Kind(), target.Kind()

	switch {
	case s == reflect.String && t == reflect.String:
		return true
	case s == reflect.Bool && t == reflect.Bool:
		return true
	case (isInt(s) || isUint(s)) && (isInt(t) || isUint(t) || isFloat(t)):
		return true
	case isFloat(s) && isFloat(t):
		return true
	default:
		return false
	}
}

// convertScalar converts and then checks the round trip, so overflow and sign loss are errors.
func convertScalar(v reflect.Value, target reflect.Type) (any, error) {
	converted := v.Convert(target)

	if !converted.Convert(v.Type()).Equal(v) {
		return nil, fmt.Errorf("%w: %v does not fit into %s", ErrLossyConversion, v.Interface(), target)
	}

	if isInt(v.Kind()) && isUint(target.Kind()) && v.Int() < 0 {
		return nil, fmt.Errorf("%w: %v is negative", ErrLossyConversion, v.Interface())
	}

	if isUint(v.Kind()) && isInt(target.Kind()) && converted.Int() < 0 {
		return nil, fmt.Errorf("%w: %v does not fit into %s", ErrLossyConversion, v.Interface(), target)
	}

	return converted.Interface(), nil
}

// Ensure Service implements specquery.Converter.
var _ specquery.Converter = (*Service)(nil)
