// Package contexts exposes the membership of a tenant context: who belongs
// to it, their role, and the context-wide policy.
package contexts

import (
	"context"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/policy"
	"github.com/covault/covault/internal/query"
	"github.com/covault/covault/internal/storage"
)

// Collection is the backing collection for contexts.
const Collection = "contexts"

// Role of a user inside a context.
const (
	RoleManager = "manager"
	RoleUser    = "user"
)

// User is one context member.
type User struct {
	UserID string `bson:"userId" json:"userId"`
	PubKey string `bson:"pubKey" json:"pubKey"`
	ACL    string `bson:"acl,omitempty" json:"acl,omitempty"`
	Role   string `bson:"role" json:"role"`
}

// Context is one tenant: its members and the context-wide policy.
type Context struct {
	ID     string                `bson:"_id" json:"id"`
	Name   string                `bson:"name,omitempty" json:"name,omitempty"`
	Users  []User                `bson:"users" json:"users"`
	Policy *policy.ContextPolicy `bson:"policy,omitempty" json:"policy,omitempty"`
}

// Membership is the lookup surface other components depend on.
type Membership interface {
	// UserExists reports whether the user is a member of the context.
	UserExists(ctx context.Context, contextID, userID string) (bool, error)

	// GetUser resolves a member by user id or public key, failing with
	// USER_DOES_NOT_EXIST when absent.
	GetUser(ctx context.Context, contextID, idOrPubKey string) (*User, error)

	// Policy returns the context-wide policy, nil when the context has none.
	Policy(ctx context.Context, contextID string) (*policy.ContextPolicy, error)
}

// Service is the repository-backed Membership implementation.
type Service struct {
	repo *storage.Repository[Context]
}

func NewService(mgr storage.Manager) *Service {
	return &Service{repo: storage.NewRepository[Context](mgr.Docs(Collection))}
}

func (s *Service) get(ctx context.Context, contextID string) (*Context, error) {
	c, err := s.repo.Get(ctx, contextID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, common.NewError(common.CodeContextDoesNotExist, "context %q does not exist", contextID)
		}
		return nil, err
	}
	return &c, nil
}

func (s *Service) UserExists(ctx context.Context, contextID, userID string) (bool, error) {
	c, err := s.get(ctx, contextID)
	if err != nil {
		return false, err
	}
	for _, u := range c.Users {
		if u.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) GetUser(ctx context.Context, contextID, idOrPubKey string) (*User, error) {
	c, err := s.get(ctx, contextID)
	if err != nil {
		return nil, err
	}
	for _, u := range c.Users {
		if u.UserID == idOrPubKey || (u.PubKey != "" && u.PubKey == idOrPubKey) {
			return &u, nil
		}
	}
	return nil, common.NewError(common.CodeUserDoesNotExist, "user %q not found in context %q", idOrPubKey, contextID)
}

func (s *Service) Policy(ctx context.Context, contextID string) (*policy.ContextPolicy, error) {
	c, err := s.get(ctx, contextID)
	if err != nil {
		return nil, err
	}
	return c.Policy, nil
}

// IsManager reports whether the user holds the manager role in the context.
func (s *Service) IsManager(ctx context.Context, contextID, userID string) (bool, error) {
	u, err := s.GetUser(ctx, contextID, userID)
	if err != nil {
		if common.CodeOf(err) == common.CodeUserDoesNotExist {
			return false, nil
		}
		return false, err
	}
	return u.Role == RoleManager, nil
}

// Save upserts a context document.
func (s *Service) Save(ctx context.Context, c *Context) error {
	if c.ID == "" {
		return common.NewError(common.CodeInvalidParams, "context id is required")
	}
	return s.repo.Replace(ctx, *c)
}

// Delete removes a context document, failing with CONTEXT_DOES_NOT_EXIST
// when absent. Cascading removal of the context's containers and resources
// is coordinated by the caller.
func (s *Service) Delete(ctx context.Context, contextID string) error {
	if _, err := s.get(ctx, contextID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, contextID)
}

// Exists reports whether the context is present.
func (s *Service) Exists(ctx context.Context, contextID string) (bool, error) {
	return s.repo.Exists(ctx, query.Eq(storage.IDField, contextID))
}
