package specquery

import (
	"errors"
	"fmt"
	"reflect"
)

// MethodDescriptor describes the repository method a query is resolved for.
type MethodDescriptor struct {
	Repository string
	Name       string

	// RootEntity names the entity the query targets. When empty, the root entity
	// is derived from ReturnType.
	RootEntity string

	ReturnType reflect.Type
	Nullable   bool
}

func (md MethodDescriptor) String() string {
	if md.Repository == "" {
		return md.Name
	}

	return md.Repository + "." + md.Name
}

// RootEntityResolver yields the entity a repository method queries.
type RootEntityResolver interface {
	ResolveRootEntity(method MethodDescriptor) (EntityType, error)
}

// EntityRegistry is a RootEntityResolver over a fixed set of entities.
// It is immutable after construction and safe for concurrent use.
type EntityRegistry struct {
	byName map[string]EntityType
	byType map[reflect.Type]EntityType
}

// NewEntityRegistry registers entities by name and by struct type; both must be unique.
func NewEntityRegistry(entities ...EntityType) (*EntityRegistry, error) {
	registry := &EntityRegistry{
		byName: make(map[string]EntityType, len(entities)),
		byType: make(map[reflect.Type]EntityType, len(entities)),
	}

	for _, entity := range entities {
		if entity.IsZero() {
			return nil, errors.Join(ErrInvalidEntityPrototype, errors.New("entity type was not built with NewEntityType"))
		}

		if _, exists := registry.byName[entity.Name()]; exists {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicateEntity, entity.Name())
		}

		if _, exists := registry.byType[entity.GoType()]; exists {
			return nil, fmt.Errorf("%w: type %s", ErrDuplicateEntity, entity.GoType())
		}

		registry.byName[entity.Name()] = entity
		registry.byType[entity.GoType()] = entity
	}

	return registry, nil
}

// Entity looks an entity up by name.
func (r *EntityRegistry) Entity(name string) (EntityType, bool) {
	entity, ok := r.byName[name]
	return entity, ok
}

// ResolveRootEntity prefers the explicitly named root entity and otherwise falls back to
// the declared return type, dereferencing pointers, slices are not unwrapped.
func (r *EntityRegistry) ResolveRootEntity(method MethodDescriptor) (EntityType, error) {
	if method.RootEntity != "" {
		if entity, ok := r.byName[method.RootEntity]; ok {
			return entity, nil
		}

		return EntityType{}, fmt.Errorf("%w: entity %q of method %s is not registered", ErrNoRootEntity, method.RootEntity, method)
	}

	t := method.ReturnType
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if entity, ok := r.byType[t]; ok {
		return entity, nil
	}

	return EntityType{}, fmt.Errorf("%w: method %s declares no root entity", ErrNoRootEntity, method)
}
