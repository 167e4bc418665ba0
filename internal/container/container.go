// Package container implements the shared-container services (threads,
// stores, key-value databases, inboxes, stream rooms) as one generic service
// parameterized by container kind. Content is opaque ciphertext; the service
// enforces policy decisions, the key-copy invariant and optimistic
// versioning around it.
package container

import (
	"context"

	"github.com/covault/covault/internal/keys"
	"github.com/covault/covault/internal/policy"
)

// HistoryEntry is one superseded data version of a container.
type HistoryEntry struct {
	Date     int64  `bson:"date" json:"date"`
	Modifier string `bson:"modifier" json:"modifier"`
	KeyID    string `bson:"keyId" json:"keyId"`
	Data     string `bson:"data" json:"data"`
}

// Container is one stored container row. Data is the current encrypted
// payload; History is the append-only log of superseded payloads and
// Version is its length.
type Container struct {
	ID        string      `bson:"_id" json:"id"`
	Kind      policy.Kind `bson:"kind" json:"kind"`
	ContextID string      `bson:"contextId" json:"contextId"`

	Creator  string   `bson:"creator" json:"creator"`
	Managers []string `bson:"managers" json:"managers"`
	Users    []string `bson:"users" json:"users"`

	KeyID string               `bson:"keyId" json:"keyId"`
	Keys  []keys.UserKeysEntry `bson:"keys" json:"keys"`

	Data    string         `bson:"data,omitempty" json:"data,omitempty"`
	History []HistoryEntry `bson:"history" json:"history"`

	Policy *policy.ContainerPolicy `bson:"policy,omitempty" json:"policy,omitempty"`

	CreateDate           int64  `bson:"createDate" json:"createDate"`
	LastModificationDate int64  `bson:"lastModificationDate" json:"lastModificationDate"`
	LastModifier         string `bson:"lastModifier" json:"lastModifier"`
}

// Version is the optimistic-concurrency token of the container.
func (c *Container) Version() int {
	return len(c.History)
}

// Members returns users and managers deduplicated.
func (c *Container) Members() []string {
	seen := make(map[string]bool, len(c.Users)+len(c.Managers))
	out := make([]string, 0, len(c.Users)+len(c.Managers))
	for _, u := range append(append([]string{}, c.Users...), c.Managers...) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func (c *Container) info() policy.ContainerInfo {
	return policy.ContainerInfo{
		Creator:  c.Creator,
		Managers: c.Managers,
		Users:    c.Users,
		Policy:   c.Policy,
	}
}

// Contexts is the slice of the context service the container service needs.
type Contexts interface {
	Policy(ctx context.Context, contextID string) (*policy.ContextPolicy, error)
	IsManager(ctx context.Context, contextID, userID string) (bool, error)
}

// CollectionFor names the backing collection of one container kind.
func CollectionFor(kind policy.Kind) string {
	return string(kind) + "s"
}
