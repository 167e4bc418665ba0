// Package keys maintains the per-container set of distributed encrypted key
// copies. The invariant it enforces: the users holding a copy of the current
// key are exactly the container's current members, never a superset and
// never a subset. Key material is opaque ciphertext to the server.
package keys

import (
	"context"
	"slices"

	"github.com/covault/covault/internal/common"
)

// KeyEntry is one user's encrypted copy of the key for one key generation.
type KeyEntry struct {
	KeyID string `bson:"keyId" json:"keyId"`
	Data  string `bson:"data" json:"data"`
}

// UserKeysEntry lists all key copies held by one user.
type UserKeysEntry struct {
	User string     `bson:"user" json:"user"`
	Keys []KeyEntry `bson:"keys" json:"keys"`
}

// KeyInsert grants one user a copy of the key for one generation.
type KeyInsert struct {
	User  string
	KeyID string
	Data  string
}

// Membership resolves whether a user belongs to a context. It is provided by
// the context service, external to this package.
type Membership interface {
	UserExists(ctx context.Context, contextID, userID string) (bool, error)
}

// Service validates and rebuilds key-copy sets.
type Service struct {
	members Membership
}

func NewService(members Membership) *Service {
	return &Service{members: members}
}

// CheckKeysAndUsersDuringCreation validates the initial key grants of a new
// container, where the only valid generation is the submitted keyId and
// there are no prior keys.
func (s *Service) CheckKeysAndUsersDuringCreation(ctx context.Context, contextID string,
	inserts []KeyInsert, keyID string, users, managers []string) ([]UserKeysEntry, error) {
	return s.CheckKeysAndClients(ctx, contextID, []string{keyID}, nil, inserts, keyID, users, managers)
}

// CheckKeysAndClients rebuilds the key list from oldKeys plus inserts and
// verifies the result against the new membership. The whole rebuild is
// computed and verified before the caller issues any write, so a failure
// never leaves a partial grant behind.
func (s *Service) CheckKeysAndClients(ctx context.Context, contextID string,
	availableKeyIDs []string, oldKeys []UserKeysEntry, inserts []KeyInsert,
	keyID string, users, managers []string) ([]UserKeysEntry, error) {

	if hasDuplicates(users) {
		return nil, common.NewError(common.CodeInvalidParams, "duplicate users")
	}
	if hasDuplicates(managers) {
		return nil, common.NewError(common.CodeInvalidParams, "duplicate managers")
	}

	allClients := uniqueUnion(users, managers)
	for _, client := range allClients {
		exists, err := s.members.UserExists(ctx, contextID, client)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, common.NewError(common.CodeUserDoesNotExist,
				"user %q is not a member of context %q", client, contextID)
		}
	}

	newKeys, err := buildKeys(availableKeyIDs, oldKeys, inserts)
	if err != nil {
		return nil, err
	}
	if err := verifyThatOnlyGivenClientsHaveAccess(newKeys, keyID, allClients); err != nil {
		return nil, err
	}
	return newKeys, nil
}

// HasRemovedClients reports whether any old client is absent from the new
// membership, i.e. whether the caller must rotate the key.
func HasRemovedClients(oldClients, newClients []string) bool {
	for _, old := range oldClients {
		if !slices.Contains(newClients, old) {
			return true
		}
	}
	return false
}

// buildKeys starts from a deep copy of oldKeys and applies the inserts. A
// grant for a generation outside availableKeyIDs fails: keys cannot be
// issued for unknown or retired generations.
func buildKeys(availableKeyIDs []string, oldKeys []UserKeysEntry, inserts []KeyInsert) ([]UserKeysEntry, error) {
	seen := map[[2]string]bool{}
	for _, insert := range inserts {
		pair := [2]string{insert.User, insert.KeyID}
		if seen[pair] {
			return nil, common.NewError(common.CodeInvalidParams,
				"duplicate key grant for user %q and key %q", insert.User, insert.KeyID)
		}
		seen[pair] = true
	}

	newKeys := copyKeys(oldKeys)
	for _, insert := range inserts {
		if !slices.Contains(availableKeyIDs, insert.KeyID) {
			return nil, common.NewError(common.CodeInvalidKeyID, "unknown key id %q", insert.KeyID)
		}
		entry := findOrCreate(&newKeys, insert.User)
		if !holdsKey(*entry, insert.KeyID) {
			entry.Keys = append(entry.Keys, KeyEntry{KeyID: insert.KeyID, Data: insert.Data})
		}
	}
	return newKeys, nil
}

// verifyThatOnlyGivenClientsHaveAccess checks both directions of the key
// invariant for the given generation: every client holds a copy, and nobody
// outside the client set does.
func verifyThatOnlyGivenClientsHaveAccess(keys []UserKeysEntry, keyID string, clients []string) error {
	holders := map[string]bool{}
	for _, entry := range keys {
		if holdsKey(entry, keyID) {
			holders[entry.User] = true
		}
	}
	for _, client := range clients {
		if !holders[client] {
			return common.NewError(common.CodeInvalidParams,
				"user %q has no key for %q", client, keyID)
		}
	}
	if len(holders) > len(clients) {
		for _, client := range clients {
			delete(holders, client)
		}
		for user := range holders {
			return common.NewError(common.CodeInvalidParams,
				"user %q holds a key for %q but is not a member", user, keyID)
		}
	}
	return nil
}

func findOrCreate(keys *[]UserKeysEntry, user string) *UserKeysEntry {
	for i := range *keys {
		if (*keys)[i].User == user {
			return &(*keys)[i]
		}
	}
	*keys = append(*keys, UserKeysEntry{User: user})
	return &(*keys)[len(*keys)-1]
}

func holdsKey(entry UserKeysEntry, keyID string) bool {
	return slices.ContainsFunc(entry.Keys, func(k KeyEntry) bool { return k.KeyID == keyID })
}

func copyKeys(keys []UserKeysEntry) []UserKeysEntry {
	out := make([]UserKeysEntry, len(keys))
	for i, entry := range keys {
		out[i] = UserKeysEntry{User: entry.User, Keys: slices.Clone(entry.Keys)}
	}
	return out
}

func hasDuplicates(values []string) bool {
	seen := map[string]bool{}
	for _, v := range values {
		if seen[v] {
			return true
		}
		seen[v] = true
	}
	return false
}

func uniqueUnion(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := map[string]bool{}
	for _, v := range slices.Concat(a, b) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
