package resource

import (
	"context"
	"slices"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/keys"
	"github.com/covault/covault/internal/storage"
)

// maxACLDepth bounds the parent chain walked while resolving membership.
const maxACLDepth = 8

// validateReadACL checks that the caller may read the resource. Embedded
// resources check their own membership; ref resources inherit it from the
// nearest embedded ancestor, which the parent chain must reach within
// maxACLDepth hops.
func (s *Service) validateReadACL(ctx context.Context, info TypeInfo, res *Resource, caller string) error {
	return s.validateACL(ctx, info, res, caller, false)
}

// validateManageACL is validateReadACL restricted to managers.
func (s *Service) validateManageACL(ctx context.Context, info TypeInfo, res *Resource, caller string) error {
	return s.validateACL(ctx, info, res, caller, true)
}

func (s *Service) validateACL(ctx context.Context, info TypeInfo, res *Resource, caller string, manage bool) error {
	if res.ACL.Kind != info.ACL.Kind {
		return common.NewError(common.CodeInvalidParams,
			"resource %q stores a %q acl but type %q expects %q",
			res.ID, res.ACL.Kind, info.Type, info.ACL.Kind)
	}
	root, err := s.embeddedRoot(ctx, res.ContextID, info, res)
	if err != nil {
		return err
	}
	return checkMembership(&root.ACL, caller, manage)
}

// embeddedRoot walks the parent chain until it reaches the resource that
// carries the embedded ACL everything below it inherits.
func (s *Service) embeddedRoot(ctx context.Context, contextID string, info TypeInfo, res *Resource) (*Resource, error) {
	cur, curInfo := res, info
	for hop := 0; hop < maxACLDepth; hop++ {
		switch cur.ACL.Kind {
		case ACLEmbedded:
			return cur, nil
		case ACLRef:
			parent, err := s.fetchParent(ctx, contextID, curInfo, cur.ACL.Parent)
			if err != nil {
				return nil, err
			}
			nextInfo, err := s.registry.Get(curInfo.ACL.ParentType)
			if err != nil {
				return nil, err
			}
			cur, curInfo = parent, nextInfo
		default:
			return nil, common.NewError(common.CodeInvalidParams,
				"resource %q has unknown acl kind %q", cur.ID, cur.ACL.Kind)
		}
	}
	return nil, common.NewError(common.CodeInvalidParams,
		"acl chain of resource %q exceeds %d hops", res.ID, maxACLDepth)
}

// fetchParent loads the parent resource of a ref child.
func (s *Service) fetchParent(ctx context.Context, contextID string, info TypeInfo, parentID string) (*Resource, error) {
	parent, err := s.repo(contextID, info.ACL.ParentType).Get(ctx, parentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, common.NewError(common.CodeParentDoesNotExist,
				"parent resource %q does not exist", parentID)
		}
		return nil, err
	}
	return &parent, nil
}

func checkMembership(acl *ACL, caller string, manage bool) error {
	if slices.Contains(acl.Managers, caller) {
		return nil
	}
	if !manage && slices.Contains(acl.Users, caller) {
		return nil
	}
	return common.NewError(common.CodeAccessDenied, "user %q has no access", caller)
}

// validateACLForCreating resolves and validates the ACL of a new resource.
// Embedded types delegate key-grant validation to the key service; ref types
// require an existing parent and a keyId equal to the parent's current one,
// so children are never created under a stale key. It returns the parent of
// a ref child so the caller can adjust its stats in the same transaction.
func (s *Service) validateACLForCreating(ctx context.Context, info TypeInfo, caller string, p CreateParams) (ACL, *Resource, error) {
	switch info.ACL.Kind {
	case ACLEmbedded:
		built, err := s.keys.CheckKeysAndUsersDuringCreation(ctx, p.ContextID,
			p.KeyInserts, p.KeyID, p.Users, p.Managers)
		if err != nil {
			return ACL{}, nil, err
		}
		return ACL{Kind: ACLEmbedded, Users: p.Users, Managers: p.Managers, Keys: built}, nil, nil
	case ACLRef:
		if p.Parent == "" {
			return ACL{}, nil, common.NewError(common.CodeInvalidParams,
				"type %q requires a parent resource", info.Type)
		}
		parent, err := s.fetchParent(ctx, p.ContextID, info, p.Parent)
		if err != nil {
			return ACL{}, nil, err
		}
		root, err := s.embeddedRoot(ctx, p.ContextID, info, &Resource{ACL: ACL{Kind: ACLRef, Parent: p.Parent}})
		if err != nil {
			return ACL{}, nil, err
		}
		if err := checkMembership(&root.ACL, caller, false); err != nil {
			return ACL{}, nil, err
		}
		if p.KeyID != parent.Last.KeyID {
			return ACL{}, nil, common.NewError(common.CodeInvalidKey,
				"key %q is not the parent's current key", p.KeyID)
		}
		return ACL{Kind: ACLRef, Parent: p.Parent}, parent, nil
	default:
		return ACL{}, nil, common.NewError(common.CodeInvalidParams,
			"type %q has unknown acl kind %q", info.Type, info.ACL.Kind)
	}
}

// KeysFor returns the key copies stored for one user of an embedded
// resource, nil when the user holds none.
func KeysFor(res *Resource, user string) []keys.KeyEntry {
	for _, entry := range res.ACL.Keys {
		if entry.User == user {
			return entry.Keys
		}
	}
	return nil
}
