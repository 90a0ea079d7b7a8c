package specquery

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx/reflectx"
)

const entityTagName = "db"

// entityMapper follows the sqlx defaults: `db` tags, lower-cased field names otherwise.
var entityMapper = reflectx.NewMapperFunc(entityTagName, strings.ToLower)

// EntityType describes a mapped entity: its logical name, the table it lives in,
// the Go struct that holds one row and the ordered list of mapped columns.
//
// It should only be constructed with NewEntityType.
type EntityType struct {
	name       string
	table      string
	goType     reflect.Type
	columns    []string
	attributes map[string]string
}

// NewEntityType maps the struct type of prototype (a struct value or a pointer to one)
// onto table. Exported top-level fields become columns, named by their `db` tag or
// their lower-cased field name; fields tagged `db:"-"` are skipped.
func NewEntityType(name string, table string, prototype any) (EntityType, error) {
	if name == "" {
		return EntityType{}, ErrEmptyEntityName
	}

	if table == "" {
		return EntityType{}, ErrEmptyTableName
	}

	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return EntityType{}, errors.Join(ErrInvalidEntityPrototype, fmt.Errorf("got %T", prototype))
	}

	fields := make([]*reflectx.FieldInfo, 0)
	for _, fi := range entityMapper.TypeMap(t).Index {
		if fi == nil || len(fi.Index) != 1 || fi.Field.PkgPath != "" || fi.Embedded {
			continue
		}

		if fi.Name == "" || fi.Name == "-" || fi.Field.Tag.Get(entityTagName) == "-" {
			continue
		}

		fields = append(fields, fi)
	}

	if len(fields) == 0 {
		return EntityType{}, errors.Join(ErrInvalidEntityPrototype, fmt.Errorf("%s has no mapped fields", t))
	}

	slices.SortFunc(fields, func(a, b *reflectx.FieldInfo) int {
		return a.Index[0] - b.Index[0]
	})

	et := EntityType{
		name:       name,
		table:      table,
		goType:     t,
		columns:    make([]string, 0, len(fields)),
		attributes: make(map[string]string, 2*len(fields)),
	}

	for _, fi := range fields {
		et.columns = append(et.columns, fi.Name)
		et.attributes[fi.Name] = fi.Name
		et.attributes[fi.Field.Name] = fi.Name
	}

	return et, nil
}

func (et EntityType) Name() string {
	return et.name
}

func (et EntityType) Table() string {
	return et.table
}

// GoType returns the struct type, not the pointer type of instances.
func (et EntityType) GoType() reflect.Type {
	return et.goType
}

// InstanceType is the type of the values a query context produces for this entity.
func (et EntityType) InstanceType() reflect.Type {
	if et.goType == nil {
		return nil
	}

	return reflect.PointerTo(et.goType)
}

// Columns returns a copy of the mapped columns in struct field order.
func (et EntityType) Columns() []string {
	return slices.Clone(et.columns)
}

// Column resolves an attribute, given either as column name or as Go field name.
func (et EntityType) Column(attribute string) (string, bool) {
	column, ok := et.attributes[attribute]
	return column, ok
}

// IsZero reports whether et was built by NewEntityType.
func (et EntityType) IsZero() bool {
	return et.goType == nil
}

// NewInstance allocates a new *Struct for one row.
func (et EntityType) NewInstance() reflect.Value {
	return reflect.New(et.goType)
}

// ScanTargets returns pointers into the fields of instance (a *Struct created by NewInstance),
// one per column and in Columns order, suitable for rows.Scan.
func (et EntityType) ScanTargets(instance reflect.Value) []any {
	v := reflect.Indirect(instance)
	traversals := entityMapper.TraversalsByName(et.goType, et.columns)
	targets := make([]any, 0, len(traversals))

	for _, traversal := range traversals {
		targets = append(targets, reflectx.FieldByIndexes(v, traversal).Addr().Interface())
	}

	return targets
}

func (et EntityType) String() string {
	return fmt.Sprintf("%s(%s)", et.name, et.table)
}
