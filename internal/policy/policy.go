// Package policy resolves layered permission rules for container and item
// operations. Three layers nest: a context-wide default, a per-container-type
// default inside the context policy, and the container's own fragment, which
// applies only when the resolved canOverwriteContextPolicy flag allows it.
package policy

import (
	"github.com/covault/covault/internal/common"
)

// MaxEntryLength bounds a single rule string.
const MaxEntryLength = 32

// Entry is one rule or flag value. The empty string means "unset, inherit
// from the next outer layer". Rule grammar is resolved by a RuleResolver;
// flag entries are "yes"/"no".
type Entry string

const (
	Yes Entry = "yes"
	No  Entry = "no"
)

// ItemPolicy carries the per-item operation rules of a container type.
type ItemPolicy struct {
	Get     Entry `bson:"get,omitempty" json:"get,omitempty"`
	ListMy  Entry `bson:"listMy,omitempty" json:"listMy,omitempty"`
	ListAll Entry `bson:"listAll,omitempty" json:"listAll,omitempty"`
	Create  Entry `bson:"create,omitempty" json:"create,omitempty"`
	Update  Entry `bson:"update,omitempty" json:"update,omitempty"`
	Delete  Entry `bson:"delete,omitempty" json:"delete,omitempty"`
}

// ContainerPolicy carries the container-level operation rules, the policy
// governance flags, and optionally the nested item policy.
type ContainerPolicy struct {
	Get     Entry `bson:"get,omitempty" json:"get,omitempty"`
	ListMy  Entry `bson:"listMy,omitempty" json:"listMy,omitempty"`
	ListAll Entry `bson:"listAll,omitempty" json:"listAll,omitempty"`
	Create  Entry `bson:"create,omitempty" json:"create,omitempty"`
	Update  Entry `bson:"update,omitempty" json:"update,omitempty"`
	Delete  Entry `bson:"delete,omitempty" json:"delete,omitempty"`

	UpdatePolicy                    Entry `bson:"updatePolicy,omitempty" json:"updatePolicy,omitempty"`
	CreatorHasToBeManager           Entry `bson:"creatorHasToBeManager,omitempty" json:"creatorHasToBeManager,omitempty"`
	UpdaterCanBeRemovedFromManagers Entry `bson:"updaterCanBeRemovedFromManagers,omitempty" json:"updaterCanBeRemovedFromManagers,omitempty"`
	OwnerCanBeRemovedFromManagers   Entry `bson:"ownerCanBeRemovedFromManagers,omitempty" json:"ownerCanBeRemovedFromManagers,omitempty"`
	CanOverwriteContextPolicy       Entry `bson:"canOverwriteContextPolicy,omitempty" json:"canOverwriteContextPolicy,omitempty"`

	Item *ItemPolicy `bson:"item,omitempty" json:"item,omitempty"`
}

// ContextPolicy is the outermost layer: a context-wide item default plus one
// container policy per container type.
type ContextPolicy struct {
	Item   *ItemPolicy      `bson:"item,omitempty" json:"item,omitempty"`
	Thread *ContainerPolicy `bson:"thread,omitempty" json:"thread,omitempty"`
	Store  *ContainerPolicy `bson:"store,omitempty" json:"store,omitempty"`
	Kvdb   *ContainerPolicy `bson:"kvdb,omitempty" json:"kvdb,omitempty"`
	Inbox  *ContainerPolicy `bson:"inbox,omitempty" json:"inbox,omitempty"`
	Stream *ContainerPolicy `bson:"stream,omitempty" json:"stream,omitempty"`
}

// Kind names a container type and selects its policy subtree from a context
// policy.
type Kind string

const (
	KindThread Kind = "thread"
	KindStore  Kind = "store"
	KindKvdb   Kind = "kvdb"
	KindInbox  Kind = "inbox"
	KindStream Kind = "stream"
)

// Kinds lists every container kind.
func Kinds() []Kind {
	return []Kind{KindThread, KindStore, KindKvdb, KindInbox, KindStream}
}

// FromContext extracts the kind's policy subtree from a context policy.
func (k Kind) FromContext(p *ContextPolicy) *ContainerPolicy {
	if p == nil {
		return nil
	}
	switch k {
	case KindThread:
		return p.Thread
	case KindStore:
		return p.Store
	case KindKvdb:
		return p.Kvdb
	case KindInbox:
		return p.Inbox
	case KindStream:
		return p.Stream
	default:
		return nil
	}
}

// itemCreatorRights reports whether the original creator of an item keeps
// creator-level rights on it beyond the matched rule.
func (k Kind) itemCreatorRights() bool {
	switch k {
	case KindThread, KindStore, KindKvdb:
		return true
	default:
		return false
	}
}

// Validate rejects overlong rule strings.
func (e Entry) Validate() error {
	if len(e) > MaxEntryLength {
		return common.NewError(common.CodeInvalidParams,
			"policy entry longer than %d characters", MaxEntryLength)
	}
	return nil
}

// Validate checks every entry of the item policy.
func (p *ItemPolicy) Validate() error {
	if p == nil {
		return nil
	}
	for _, e := range []Entry{p.Get, p.ListMy, p.ListAll, p.Create, p.Update, p.Delete} {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every entry of the container policy.
func (p *ContainerPolicy) Validate() error {
	if p == nil {
		return nil
	}
	entries := []Entry{
		p.Get, p.ListMy, p.ListAll, p.Create, p.Update, p.Delete,
		p.UpdatePolicy, p.CreatorHasToBeManager, p.UpdaterCanBeRemovedFromManagers,
		p.OwnerCanBeRemovedFromManagers, p.CanOverwriteContextPolicy,
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return p.Item.Validate()
}

// Validate checks every entry of the context policy.
func (p *ContextPolicy) Validate() error {
	if p == nil {
		return nil
	}
	if err := p.Item.Validate(); err != nil {
		return err
	}
	for _, k := range Kinds() {
		if err := k.FromContext(p).Validate(); err != nil {
			return err
		}
	}
	return nil
}
