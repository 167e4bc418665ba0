package resource

import "github.com/covault/covault/internal/keys"

// ACL is the stored access-control record of one resource. Kind selects
// which fields are populated: embedded resources carry their own membership
// and key copies, ref resources point at a parent.
type ACL struct {
	Kind ACLKind `bson:"kind" json:"kind"`

	Users    []string             `bson:"users,omitempty" json:"users,omitempty"`
	Managers []string             `bson:"managers,omitempty" json:"managers,omitempty"`
	Keys     []keys.UserKeysEntry `bson:"keys,omitempty" json:"keys,omitempty"`

	Parent string `bson:"parent,omitempty" json:"parent,omitempty"`
}

// State is one data version of a resource.
type State struct {
	Created int64          `bson:"created" json:"created"`
	Author  string         `bson:"author" json:"author"`
	KeyID   string         `bson:"keyId" json:"keyId"`
	Props   map[string]any `bson:"props" json:"props"`
}

// Stat tracks direct child additions and removals of one type under a
// parent. Cascaded subtree deletions do not adjust ancestor counters; those
// rows die together with the subtree that carried them.
type Stat struct {
	Count    int64 `bson:"count" json:"count"`
	LastDate int64 `bson:"lastDate" json:"lastDate"`
}

// Resource is one stored resource row. Version is len(History); Last is the
// current state, History the append-only log of superseded states.
type Resource struct {
	ID         string          `bson:"_id" json:"id"`
	Type       string          `bson:"type" json:"type"`
	ContextID  string          `bson:"contextId" json:"contextId"`
	Creator    string          `bson:"creator" json:"creator"`
	CreateDate int64           `bson:"createDate" json:"createDate"`
	ACL        ACL             `bson:"acl" json:"acl"`
	Last       State           `bson:"last" json:"last"`
	History    []State         `bson:"history" json:"history"`
	Stats      map[string]Stat `bson:"stats,omitempty" json:"stats,omitempty"`
}

// Version is the optimistic-concurrency token of the resource.
func (r *Resource) Version() int {
	return len(r.History)
}

// BufferRef is the durable reference a committed bigbuffer prop is stored
// as, replacing the staged-file index submitted by the client.
type BufferRef struct {
	FileID string `bson:"fileId" json:"fileId"`
	Size   int64  `bson:"size" json:"size"`
}
