package container

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/keys"
	"github.com/covault/covault/internal/logging"
	"github.com/covault/covault/internal/metrics"
	"github.com/covault/covault/internal/notify"
	"github.com/covault/covault/internal/policy"
	"github.com/covault/covault/internal/query"
	"github.com/covault/covault/internal/storage"
)

// Deps collects the collaborators of a container service.
type Deps struct {
	Manager  storage.Manager
	Keys     *keys.Service
	Contexts Contexts
	Notifier notify.Dispatcher
	Logger   logging.Logger
	Metrics  metrics.Metrics
}

// Service handles one container kind. All five kinds run the same code;
// only the policy subtree and the collection differ.
type Service struct {
	kind     policy.Kind
	engine   *policy.Engine
	mgr      storage.Manager
	keys     *keys.Service
	contexts Contexts
	notifier notify.Dispatcher
	logger   logging.Logger
	metrics  metrics.Metrics
}

func NewService(kind policy.Kind, deps Deps) *Service {
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	n := deps.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	return &Service{
		kind:     kind,
		engine:   policy.NewEngine(kind),
		mgr:      deps.Manager,
		keys:     deps.Keys,
		contexts: deps.Contexts,
		notifier: n,
		logger:   deps.Logger,
		metrics:  m,
	}
}

func (s *Service) Kind() policy.Kind { return s.kind }

func (s *Service) repo() *storage.Repository[Container] {
	return storage.NewRepository[Container](s.mgr.Docs(CollectionFor(s.kind)))
}

func (s *Service) subject(ctx context.Context, contextID, caller string) (policy.Subject, *policy.ContextPolicy, error) {
	ctxPolicy, err := s.contexts.Policy(ctx, contextID)
	if err != nil {
		return policy.Subject{}, nil, err
	}
	isManager, err := s.contexts.IsManager(ctx, contextID, caller)
	if err != nil {
		return policy.Subject{}, nil, err
	}
	return policy.Subject{UserID: caller, ContextManager: isManager}, ctxPolicy, nil
}

// CreateParams carries one container creation.
type CreateParams struct {
	ContextID string

	Users      []string
	Managers   []string
	KeyID      string
	KeyInserts []keys.KeyInsert

	Data   string
	Policy *policy.ContainerPolicy
}

// Create checks the create policy, builds and verifies the initial key-copy
// set and inserts the container in one transaction.
func (s *Service) Create(ctx context.Context, caller string, p CreateParams) (*Container, error) {
	s.metrics.IncOperation(string(s.kind), "create")
	c, err := s.create(ctx, caller, p)
	if err != nil {
		s.metrics.IncError(string(s.kind), "create", string(common.CodeOf(err)))
		return nil, err
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Action: notify.ActionCreated, Entity: "container", Type: string(s.kind),
		ContextID: c.ContextID, ID: c.ID, Actor: caller,
	})
	return c, nil
}

func (s *Service) create(ctx context.Context, caller string, p CreateParams) (*Container, error) {
	sub, ctxPolicy, err := s.subject(ctx, p.ContextID, caller)
	if err != nil {
		return nil, err
	}
	if err := s.engine.MakeCreateContainerCheck(sub, ctxPolicy, p.Managers, p.Policy); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	c := &Container{
		ID:                   uuid.NewString(),
		Kind:                 s.kind,
		ContextID:            p.ContextID,
		Creator:              caller,
		Managers:             p.Managers,
		Users:                p.Users,
		KeyID:                p.KeyID,
		Data:                 p.Data,
		Policy:               p.Policy,
		CreateDate:           now,
		LastModificationDate: now,
		LastModifier:         caller,
	}

	err = s.mgr.WithTransaction(ctx, func(ctx context.Context) error {
		built, err := s.keys.CheckKeysAndUsersDuringCreation(ctx, p.ContextID,
			p.KeyInserts, p.KeyID, p.Users, p.Managers)
		if err != nil {
			return err
		}
		c.Keys = built
		return s.repo().Insert(ctx, *c)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "container created", "kind", s.kind, "id", c.ID, "context", c.ContextID)
	return c, nil
}

// Get returns one container after a read policy check.
func (s *Service) Get(ctx context.Context, caller, contextID, id string) (*Container, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	sub, ctxPolicy, err := s.subject(ctx, contextID, caller)
	if err != nil {
		return nil, err
	}
	if !s.engine.CanReadContainer(sub, ctxPolicy, c.info()) {
		return nil, common.NewError(common.CodeAccessDenied, "read of %s %q denied", s.kind, id)
	}
	return c, nil
}

func (s *Service) get(ctx context.Context, id string) (*Container, error) {
	c, err := s.repo().Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, common.NewError(common.CodeContainerDoesNotExist,
				"%s %q does not exist", s.kind, id)
		}
		return nil, err
	}
	return &c, nil
}

// UpdateParams carries one container update. The full membership and key
// grant set is submitted each time; Version must match the version the
// caller read unless Force is set.
type UpdateParams struct {
	ContextID string
	ID        string

	Users      []string
	Managers   []string
	KeyID      string
	KeyInserts []keys.KeyInsert

	Data   string
	Policy *policy.ContainerPolicy

	Version int
	Force   bool
}

// Update rebuilds and verifies the key-copy set against the new membership
// and replaces the container state, all inside one transaction serialized by
// a per-container advisory lock. The previous payload moves into the
// history.
func (s *Service) Update(ctx context.Context, caller string, p UpdateParams) (*Container, error) {
	s.metrics.IncOperation(string(s.kind), "update")
	c, err := s.update(ctx, caller, p)
	if err != nil {
		s.metrics.IncError(string(s.kind), "update", string(common.CodeOf(err)))
		return nil, err
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Action: notify.ActionUpdated, Entity: "container", Type: string(s.kind),
		ContextID: c.ContextID, ID: c.ID, Actor: caller,
	})
	return c, nil
}

func (s *Service) update(ctx context.Context, caller string, p UpdateParams) (*Container, error) {
	var updated *Container
	err := s.mgr.WithTransaction(ctx, func(ctx context.Context) error {
		return s.mgr.WithLock(ctx, []string{"container-" + p.ID}, func(ctx context.Context) error {
			c, err := s.get(ctx, p.ID)
			if err != nil {
				return err
			}
			if !p.Force && p.Version != c.Version() {
				return common.NewError(common.CodeVersionConflict,
					"%s %q is at version %d, not %d", s.kind, p.ID, c.Version(), p.Version)
			}
			sub, ctxPolicy, err := s.subject(ctx, p.ContextID, caller)
			if err != nil {
				return err
			}
			if err := s.engine.MakeUpdateContainerCheck(sub, ctxPolicy, c.info(), p.Managers, p.Policy); err != nil {
				return err
			}

			built, err := s.keys.CheckKeysAndClients(ctx, p.ContextID,
				availableKeyIDs(c, p.KeyID), c.Keys, p.KeyInserts, p.KeyID, p.Users, p.Managers)
			if err != nil {
				return err
			}

			c.History = append(c.History, HistoryEntry{
				Date:     c.LastModificationDate,
				Modifier: c.LastModifier,
				KeyID:    c.KeyID,
				Data:     c.Data,
			})
			c.Users = p.Users
			c.Managers = p.Managers
			c.KeyID = p.KeyID
			c.Keys = built
			c.Data = p.Data
			if p.Policy != nil {
				c.Policy = p.Policy
			}
			c.LastModificationDate = time.Now().UnixMilli()
			c.LastModifier = caller

			if err := s.repo().Update(ctx, *c); err != nil {
				return err
			}
			updated = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// availableKeyIDs is every generation already present in the stored key
// list plus the submitted current one. Grants against anything else are
// grants for unknown or retired generations.
func availableKeyIDs(c *Container, newKeyID string) []string {
	seen := map[string]bool{newKeyID: true}
	out := []string{newKeyID}
	for _, entry := range c.Keys {
		for _, k := range entry.Keys {
			if !seen[k.KeyID] {
				seen[k.KeyID] = true
				out = append(out, k.KeyID)
			}
		}
	}
	return out
}

// RequiresRotation reports whether replacing the membership of c with the
// given lists removes anyone, in which case the caller must rotate the key
// and re-encrypt upstream.
func RequiresRotation(c *Container, newUsers, newManagers []string) bool {
	next := append(append([]string{}, newUsers...), newManagers...)
	return keys.HasRemovedClients(c.Members(), next)
}

// Delete removes a container after a delete policy check. The version the
// caller read must match unless force is set.
func (s *Service) Delete(ctx context.Context, caller, contextID, id string, version int, force bool) error {
	s.metrics.IncOperation(string(s.kind), "delete")
	if err := s.delete(ctx, caller, contextID, id, version, force); err != nil {
		s.metrics.IncError(string(s.kind), "delete", string(common.CodeOf(err)))
		return err
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Action: notify.ActionDeleted, Entity: "container", Type: string(s.kind),
		ContextID: contextID, ID: id, Actor: caller,
	})
	return nil
}

func (s *Service) delete(ctx context.Context, caller, contextID, id string, version int, force bool) error {
	return s.mgr.WithTransaction(ctx, func(ctx context.Context) error {
		return s.mgr.WithLock(ctx, []string{"container-" + id}, func(ctx context.Context) error {
			c, err := s.get(ctx, id)
			if err != nil {
				return err
			}
			if !force && version != c.Version() {
				return common.NewError(common.CodeVersionConflict,
					"%s %q is at version %d, not %d", s.kind, id, c.Version(), version)
			}
			sub, ctxPolicy, err := s.subject(ctx, contextID, caller)
			if err != nil {
				return err
			}
			if !s.engine.CanDeleteContainer(sub, ctxPolicy, c.info()) {
				return common.NewError(common.CodeAccessDenied, "delete of %s %q denied", s.kind, id)
			}
			return s.repo().Delete(ctx, id)
		})
	})
}

// ListMy returns the containers of the context the caller belongs to.
func (s *Service) ListMy(ctx context.Context, caller, contextID string,
	opts ...*storage.FindOptions) ([]Container, error) {

	sub, ctxPolicy, err := s.subject(ctx, contextID, caller)
	if err != nil {
		return nil, err
	}
	if !s.engine.CanListMyContainers(sub, ctxPolicy) {
		return nil, common.NewError(common.CodeAccessDenied, "listing own %ss denied", s.kind)
	}
	q := query.And(
		query.Eq("contextId", contextID),
		query.Or(
			query.Eq("creator", caller),
			query.Eq("managers", caller),
			query.Eq("users", caller),
		),
	)
	return s.repo().FindAll(ctx, q, opts...)
}

// ListAll returns every container of the context.
func (s *Service) ListAll(ctx context.Context, caller, contextID string,
	opts ...*storage.FindOptions) ([]Container, error) {

	sub, ctxPolicy, err := s.subject(ctx, contextID, caller)
	if err != nil {
		return nil, err
	}
	if !s.engine.CanListAllContainers(sub, ctxPolicy) {
		return nil, common.NewError(common.CodeAccessDenied, "listing all %ss denied", s.kind)
	}
	return s.repo().FindAll(ctx, query.Eq("contextId", contextID), opts...)
}

// DeleteByContext removes every container of the context. It backs the
// context-deletion cascade and performs no per-container policy checks; the
// caller owns the decision.
func (s *Service) DeleteByContext(ctx context.Context, contextID string) error {
	return s.repo().DeleteMany(ctx, query.Eq("contextId", contextID))
}
