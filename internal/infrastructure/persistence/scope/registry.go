// Package scope builds, once per entity type, the capability descriptor and
// reusable query predicate that keep every read inside the caller's
// authorized branches and tenant.
//
// Capabilities are resolved by interface assertion at registration time
// against the markers in domain/shared, never by per-call reflection or by
// field-name convention. The resulting descriptor also carries the field
// layout used for copy-on-load snapshots and commit-time diffing.
package scope

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Capabilities records which persistence behaviors an entity type declared
type Capabilities struct {
	BranchScoped  bool
	TenantOwned   bool
	SoftDeletable bool
	Auditable     bool
	Versioned     bool
}

// Field describes one persisted column of an entity type
type Field struct {
	// Name is the database column name
	Name string
	// Index is the reflect index path into the (possibly embedded) struct
	Index []int
}

// Descriptor is the static, per-type result of registration
type Descriptor struct {
	GoType reflect.Type // the entity struct type, not the pointer
	Name   string       // entity type name, e.g. "Patient"
	Table  string
	Caps   Capabilities

	fields  []Field
	byName  map[string]Field
	idIndex []int
}

// Registry holds one descriptor per registered entity type. It is built at
// startup; lookups after that are plain map reads.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*Descriptor
	byName map[string]*Descriptor
	naming schema.NamingStrategy
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*Descriptor),
		byName: make(map[string]*Descriptor),
	}
}

// Register builds the descriptor for an entity type. The prototype must be
// a pointer to a struct (capability interfaces use pointer receivers).
// Registering the same type twice returns the existing descriptor.
func (r *Registry) Register(prototype any) (*Descriptor, error) {
	t := reflect.TypeOf(prototype)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("scope: prototype must be a pointer to struct, got %T", prototype)
	}
	elem := t.Elem()

	r.mu.RLock()
	existing, ok := r.byType[elem]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	d := &Descriptor{
		GoType: elem,
		Name:   elem.Name(),
		Table:  r.tableName(prototype, elem),
		Caps: Capabilities{
			BranchScoped:  implementsBranchScoped(prototype),
			TenantOwned:   implementsTenantOwned(prototype),
			SoftDeletable: implementsSoftDeletable(prototype),
			Auditable:     implementsAuditable(prototype),
			Versioned:     implementsVersioned(prototype),
		},
		byName: make(map[string]Field),
	}

	r.collectFields(d, elem, nil)
	if len(d.idIndex) == 0 {
		return nil, fmt.Errorf("scope: entity %s has no ID field", d.Name)
	}

	r.mu.Lock()
	if dup, ok := r.byType[elem]; ok {
		r.mu.Unlock()
		return dup, nil
	}
	r.byType[elem] = d
	r.byName[d.Name] = d
	r.mu.Unlock()
	return d, nil
}

// MustRegister registers a prototype and panics on error. Intended for
// startup wiring where a bad prototype is a programming error.
func (r *Registry) MustRegister(prototype any) *Descriptor {
	d, err := r.Register(prototype)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup finds the descriptor for an entity instance
func (r *Registry) Lookup(entity any) (*Descriptor, bool) {
	t := reflect.TypeOf(entity)
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	d, ok := r.byType[t]
	r.mu.RUnlock()
	return d, ok
}

// LookupByName finds a descriptor by its entity type name, e.g. "Patient"
func (r *Registry) LookupByName(name string) (*Descriptor, bool) {
	r.mu.RLock()
	d, ok := r.byName[name]
	r.mu.RUnlock()
	return d, ok
}

func (r *Registry) tableName(prototype any, elem reflect.Type) string {
	if tn, ok := prototype.(interface{ TableName() string }); ok {
		return tn.TableName()
	}
	return r.naming.TableName(elem.Name())
}

// collectFields flattens exported persisted fields, recursing into embedded
// structs the way GORM does.
func (r *Registry) collectFields(d *Descriptor, t reflect.Type, prefix []int) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		index := append(append([]int{}, prefix...), i)

		tag := f.Tag.Get("gorm")
		if tag == "-" || strings.HasPrefix(tag, "-;") {
			continue
		}

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			r.collectFields(d, f.Type, index)
			continue
		}

		switch f.Type.Kind() {
		case reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
			continue
		}

		name := columnFromTag(tag)
		if name == "" {
			name = r.naming.ColumnName("", f.Name)
		}

		field := Field{Name: name, Index: index}
		d.fields = append(d.fields, field)
		d.byName[name] = field
		if f.Name == "ID" && len(prefix) <= 1 {
			d.idIndex = index
		}
	}
}

func columnFromTag(tag string) string {
	for _, part := range strings.Split(tag, ";") {
		if strings.HasPrefix(part, "column:") {
			return strings.TrimPrefix(part, "column:")
		}
	}
	return ""
}

func implementsBranchScoped(v any) bool {
	_, ok := v.(shared.BranchScoped)
	return ok
}

func implementsTenantOwned(v any) bool {
	_, ok := v.(shared.TenantOwned)
	return ok
}

func implementsSoftDeletable(v any) bool {
	_, ok := v.(shared.SoftDeletable)
	return ok
}

func implementsAuditable(v any) bool {
	_, ok := v.(shared.Auditable)
	return ok
}

func implementsVersioned(v any) bool {
	_, ok := v.(shared.Versioned)
	return ok
}

// Fields returns the persisted fields in declaration order
func (d *Descriptor) Fields() []Field {
	return d.fields
}

// HasField reports whether the type persists the given column
func (d *Descriptor) HasField(name string) bool {
	_, ok := d.byName[name]
	return ok
}

// Snapshot copies the entity's current field values into a column-keyed map
func (d *Descriptor) Snapshot(entity any) map[string]any {
	v := reflect.ValueOf(entity)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	values := make(map[string]any, len(d.fields))
	for _, f := range d.fields {
		values[f.Name] = v.FieldByIndex(f.Index).Interface()
	}
	return values
}

// Set writes a value back onto the entity's field for the given column.
// Used to restore immutable creation stamps before a write goes out.
func (d *Descriptor) Set(entity any, column string, value any) {
	f, ok := d.byName[column]
	if !ok {
		return
	}
	target := reflect.ValueOf(entity).Elem().FieldByIndex(f.Index)
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target.Type()) {
		target.Set(rv)
	}
}

// EntityID renders the entity's primary key as a string
func (d *Descriptor) EntityID(entity any) string {
	v := reflect.ValueOf(entity)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return fmt.Sprint(v.FieldByIndex(d.idIndex).Interface())
}

// New returns a pointer to a zero value of the entity type
func (d *Descriptor) New() any {
	return reflect.New(d.GoType).Interface()
}

// Scope returns the read predicate for this type under the given access
// context: branch filter, tenant filter, and tombstone exclusion, as the
// type's capabilities require. Callers cannot bypass it except through the
// repository's privileged read operations, which are logged.
func (d *Descriptor) Scope(ac *access.Context) func(*gorm.DB) *gorm.DB {
	return d.scope(ac, false)
}

// ScopeIncludeDeleted is the read predicate without the tombstone filter.
func (d *Descriptor) ScopeIncludeDeleted(ac *access.Context) func(*gorm.DB) *gorm.DB {
	return d.scope(ac, true)
}

func (d *Descriptor) scope(ac *access.Context, includeDeleted bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if d.Caps.BranchScoped && ac.ShouldFilterByBranch() {
			ids := ac.BranchIDs()
			if len(ids) == 0 {
				// No accessible branches: nothing is visible.
				return db.Where("1 = 0")
			}
			db = db.Where("branch_id IN ?", ids)
		}
		if d.Caps.TenantOwned && !ac.IsSuperAdmin() {
			db = db.Where("tenant_id = ?", ac.TenantID())
		}
		if d.Caps.SoftDeletable && !includeDeleted {
			db = db.Where("is_deleted = ?", false)
		}
		return db
	}
}
