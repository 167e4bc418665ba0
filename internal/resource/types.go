// Package resource implements generic declarative resource types: a schema
// registry, nested property validation, hierarchical ACL (embedded root or
// child by reference), and the staged-upload lifecycle of binary fields.
// Container services are specialized instances of the same pattern.
package resource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/covault/covault/internal/common"
)

// ACLKind says how a resource type resolves access: a root type embeds its
// own membership and key copies, a child type references a parent resource
// and inherits its ACL.
type ACLKind string

const (
	ACLEmbedded ACLKind = "embedded"
	ACLRef      ACLKind = "ref"
)

// TypeACL declares a type's ACL mode. ParentType and PropagateStats apply
// only to ref types.
type TypeACL struct {
	Kind           ACLKind
	ParentType     string
	PropagateStats bool
}

// PropKind tags a property description.
type PropKind string

const (
	PropString    PropKind = "string"
	PropBoolean   PropKind = "boolean"
	PropNumber    PropKind = "number"
	PropBigBuffer PropKind = "bigbuffer"
	PropObject    PropKind = "object"
	PropList      PropKind = "list"
	PropRef       PropKind = "ref"
)

// PropDescription is the tagged union describing one property. Props is set
// for objects, Elem for lists, RefType for refs.
type PropDescription struct {
	Kind     PropKind
	Props    map[string]PropDescription
	Elem     *PropDescription
	RefType  string
	Optional bool
	Nullable bool
}

// Convenience constructors used by type registrations.

func String() PropDescription    { return PropDescription{Kind: PropString} }
func Boolean() PropDescription   { return PropDescription{Kind: PropBoolean} }
func Number() PropDescription    { return PropDescription{Kind: PropNumber} }
func BigBuffer() PropDescription { return PropDescription{Kind: PropBigBuffer} }

func Object(props map[string]PropDescription) PropDescription {
	return PropDescription{Kind: PropObject, Props: props}
}

func List(elem PropDescription) PropDescription {
	return PropDescription{Kind: PropList, Elem: &elem}
}

func Ref(refType string) PropDescription {
	return PropDescription{Kind: PropRef, RefType: refType}
}

// AsOptional marks the property as omittable.
func (d PropDescription) AsOptional() PropDescription {
	d.Optional = true
	return d
}

// AsNullable allows an explicit null value.
func (d PropDescription) AsNullable() PropDescription {
	d.Nullable = true
	return d
}

// TypeInfo is the declarative schema of one resource type.
type TypeInfo struct {
	Type     string
	ACL      TypeACL
	Props    map[string]PropDescription
	Children []string
	Stats    []string
}

func (t TypeInfo) validate() error {
	if t.Type == "" {
		return common.NewError(common.CodeInvalidParams, "resource type name is required")
	}
	switch t.ACL.Kind {
	case ACLEmbedded:
		if t.ACL.ParentType != "" {
			return common.NewError(common.CodeInvalidParams,
				"embedded type %q cannot declare a parent type", t.Type)
		}
	case ACLRef:
		if t.ACL.ParentType == "" {
			return common.NewError(common.CodeInvalidParams,
				"ref type %q requires a parent type", t.Type)
		}
	default:
		return common.NewError(common.CodeInvalidParams,
			"type %q has unknown acl kind %q", t.Type, t.ACL.Kind)
	}
	return validateProps(t.Type, t.Props)
}

func validateProps(typ string, props map[string]PropDescription) error {
	for name, desc := range props {
		switch desc.Kind {
		case PropString, PropBoolean, PropNumber, PropBigBuffer:
		case PropObject:
			if err := validateProps(typ, desc.Props); err != nil {
				return err
			}
		case PropList:
			if desc.Elem == nil {
				return common.NewError(common.CodeInvalidParams,
					"type %q: list prop %q has no element type", typ, name)
			}
			if err := validateProps(typ, map[string]PropDescription{name: *desc.Elem}); err != nil {
				return err
			}
		case PropRef:
			if desc.RefType == "" {
				return common.NewError(common.CodeInvalidParams,
					"type %q: ref prop %q has no target type", typ, name)
			}
		default:
			return common.NewError(common.CodeInvalidParams,
				"type %q: prop %q has unknown kind %q", typ, name, desc.Kind)
		}
	}
	return nil
}

// Registry holds the registered resource types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeInfo
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]TypeInfo)}
}

// RegisterType adds a type; registering the same name twice fails.
func (r *Registry) RegisterType(info TypeInfo) error {
	if err := info.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[info.Type]; ok {
		return common.NewError(common.CodeInvalidParams, "resource type %q already registered", info.Type)
	}
	r.types[info.Type] = info
	return nil
}

// Get returns the type info, failing with RESOURCE_TYPE_DOES_NOT_EXIST.
func (r *Registry) Get(typ string) (TypeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[typ]
	if !ok {
		return TypeInfo{}, common.NewError(common.CodeResourceTypeDoesNotExist,
			"resource type %q is not registered", typ)
	}
	return info, nil
}

// Types lists the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for typ := range r.types {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Collection names the backing collection for one (context, type) pair.
func Collection(contextID, typ string) string {
	return fmt.Sprintf("resource_%s_%s", contextID, typ)
}
