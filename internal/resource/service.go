package resource

import (
	"context"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/covault/covault/internal/blob"
	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/keys"
	"github.com/covault/covault/internal/logging"
	"github.com/covault/covault/internal/metrics"
	"github.com/covault/covault/internal/notify"
	"github.com/covault/covault/internal/query"
	"github.com/covault/covault/internal/storage"
	"github.com/covault/covault/internal/upload"
)

const component = "resource"

// Deps collects the collaborators of the resource service.
type Deps struct {
	Manager  storage.Manager
	Keys     *keys.Service
	Staging  upload.Staging
	Blobs    blob.Storage
	Notifier notify.Dispatcher
	Logger   logging.Logger
	Metrics  metrics.Metrics
}

// Service runs the generic resource engine over a registry of declared
// types.
type Service struct {
	registry *Registry
	mgr      storage.Manager
	keys     *keys.Service
	staging  upload.Staging
	blobs    blob.Storage
	notifier notify.Dispatcher
	logger   logging.Logger
	metrics  metrics.Metrics
}

func NewService(registry *Registry, deps Deps) *Service {
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	n := deps.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	return &Service{
		registry: registry,
		mgr:      deps.Manager,
		keys:     deps.Keys,
		staging:  deps.Staging,
		blobs:    deps.Blobs,
		notifier: n,
		logger:   deps.Logger,
		metrics:  m,
	}
}

// RegisterType declares a resource type.
func (s *Service) RegisterType(info TypeInfo) error {
	return s.registry.RegisterType(info)
}

func (s *Service) repo(contextID, typ string) *storage.Repository[Resource] {
	return storage.NewRepository[Resource](s.mgr.Docs(Collection(contextID, typ)))
}

// CreateParams carries everything needed to create one resource.
type CreateParams struct {
	ContextID string
	Type      string

	// RequestID names the staged-upload session holding the bigbuffer
	// payloads referenced by Props; empty when the schema has none.
	RequestID string

	KeyID string

	// Embedded types.
	Users      []string
	Managers   []string
	KeyInserts []keys.KeyInsert

	// Ref types.
	Parent string

	Props map[string]any
}

// CreateResource validates the props against the declared schema, resolves
// the ACL, commits staged bigbuffer payloads and inserts the row, all
// inside one transaction. The schema and buffer checks run before any write.
func (s *Service) CreateResource(ctx context.Context, caller string, p CreateParams) (*Resource, error) {
	s.metrics.IncOperation(component, "create")
	res, err := s.createResource(ctx, caller, p)
	if err != nil {
		s.metrics.IncError(component, "create", string(common.CodeOf(err)))
		return nil, err
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Action: notify.ActionCreated, Entity: "resource", Type: res.Type,
		ContextID: res.ContextID, ID: res.ID, Actor: caller,
	})
	return res, nil
}

func (s *Service) createResource(ctx context.Context, caller string, p CreateParams) (*Resource, error) {
	info, err := s.registry.Get(p.Type)
	if err != nil {
		return nil, err
	}
	if err := s.validateProps(ctx, p.ContextID, info.Props, p.Props); err != nil {
		return nil, err
	}
	staged, err := s.stagedFor(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}
	if err := s.checkBigBuffers(info.Props, p.Props, staged); err != nil {
		return nil, err
	}

	res := &Resource{
		ID:         uuid.NewString(),
		Type:       p.Type,
		ContextID:  p.ContextID,
		Creator:    caller,
		CreateDate: nowMillis(),
	}

	err = s.mgr.WithTransaction(ctx, func(ctx context.Context) error {
		return s.mgr.WithLock(ctx, createLockIDs(p), func(ctx context.Context) error {
			acl, parent, err := s.validateACLForCreating(ctx, info, caller, p)
			if err != nil {
				return err
			}
			props, err := s.commitBigBuffers(ctx, info.Props, p.Props, staged)
			if err != nil {
				return err
			}
			res.ACL = acl
			res.Last = State{Created: res.CreateDate, Author: caller, KeyID: p.KeyID, Props: props}
			if err := s.repo(p.ContextID, p.Type).Insert(ctx, *res); err != nil {
				return err
			}
			if parent != nil {
				return s.bumpStats(ctx, info, res.Type, parent, 1)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "resource created", "type", res.Type, "id", res.ID, "context", res.ContextID)
	return res, nil
}

func createLockIDs(p CreateParams) []string {
	if p.Parent != "" {
		return []string{"resource-" + p.Parent}
	}
	return nil
}

// GetResource returns one resource after a read ACL check.
func (s *Service) GetResource(ctx context.Context, caller, contextID, typ, id string) (*Resource, error) {
	info, err := s.registry.Get(typ)
	if err != nil {
		return nil, err
	}
	res, err := s.get(ctx, contextID, typ, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateReadACL(ctx, info, res, caller); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) get(ctx context.Context, contextID, typ, id string) (*Resource, error) {
	res, err := s.repo(contextID, typ).Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, common.NewError(common.CodeResourceDoesNotExist,
				"resource %q does not exist", id)
		}
		return nil, err
	}
	return &res, nil
}

// GetResources lists the embedded-root resources of a type the caller is a
// member of.
func (s *Service) GetResources(ctx context.Context, caller, contextID, typ string,
	opts ...*storage.FindOptions) ([]Resource, error) {

	info, err := s.registry.Get(typ)
	if err != nil {
		return nil, err
	}
	if info.ACL.Kind != ACLEmbedded {
		return nil, common.NewError(common.CodeInvalidParams,
			"type %q is not a root type", typ)
	}
	q := query.Or(query.Eq("acl.users", caller), query.Eq("acl.managers", caller))
	return s.repo(contextID, typ).FindAll(ctx, q, opts...)
}

// GetResourcesByParent lists the ref children of one parent resource, after
// a read check against the parent.
func (s *Service) GetResourcesByParent(ctx context.Context, caller, contextID, typ, parentID string,
	opts ...*storage.FindOptions) ([]Resource, error) {

	info, err := s.registry.Get(typ)
	if err != nil {
		return nil, err
	}
	if info.ACL.Kind != ACLRef {
		return nil, common.NewError(common.CodeInvalidParams,
			"type %q is not a child type", typ)
	}
	parent, err := s.fetchParent(ctx, contextID, info, parentID)
	if err != nil {
		return nil, err
	}
	parentInfo, err := s.registry.Get(info.ACL.ParentType)
	if err != nil {
		return nil, err
	}
	root, err := s.embeddedRoot(ctx, contextID, parentInfo, parent)
	if err != nil {
		return nil, err
	}
	if err := checkMembership(&root.ACL, caller, false); err != nil {
		return nil, err
	}
	return s.repo(contextID, typ).FindAll(ctx, query.Eq("acl.parent", parentID), opts...)
}

// DownloadResourceBuffer streams a committed bigbuffer prop.
func (s *Service) DownloadResourceBuffer(ctx context.Context, caller, contextID, typ, id,
	propPath string, rng blob.Range) (io.ReadCloser, error) {

	res, err := s.GetResource(ctx, caller, contextID, typ, id)
	if err != nil {
		return nil, err
	}
	ref, ok := bufferRefAt(res.Last.Props, propPath)
	if !ok {
		return nil, common.NewError(common.CodeFileDoesNotExist,
			"prop %q of resource %q holds no buffer", propPath, id)
	}
	return s.blobs.ReadRange(ctx, ref.FileID, rng)
}

// UpdateParams carries one resource update.
type UpdateParams struct {
	ContextID string
	Type      string
	ID        string
	RequestID string

	// KeyID of the new state; empty inherits the current one.
	KeyID string

	Props   map[string]any
	Version int
	Force   bool
}

// UpdateResource replaces the current state: the previous state moves into
// the history, overwritten bigbuffer payloads are released, and the version
// the caller read must match unless force is set.
func (s *Service) UpdateResource(ctx context.Context, caller string, p UpdateParams) (*Resource, error) {
	s.metrics.IncOperation(component, "update")
	res, err := s.updateResource(ctx, caller, p)
	if err != nil {
		s.metrics.IncError(component, "update", string(common.CodeOf(err)))
		return nil, err
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Action: notify.ActionUpdated, Entity: "resource", Type: res.Type,
		ContextID: res.ContextID, ID: res.ID, Actor: caller,
	})
	return res, nil
}

func (s *Service) updateResource(ctx context.Context, caller string, p UpdateParams) (*Resource, error) {
	info, err := s.registry.Get(p.Type)
	if err != nil {
		return nil, err
	}
	if err := s.validateProps(ctx, p.ContextID, info.Props, p.Props); err != nil {
		return nil, err
	}
	staged, err := s.stagedFor(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}
	if err := s.checkBigBuffers(info.Props, p.Props, staged); err != nil {
		return nil, err
	}

	var updated *Resource
	err = s.mgr.WithTransaction(ctx, func(ctx context.Context) error {
		return s.mgr.WithLock(ctx, []string{"resource-" + p.ID}, func(ctx context.Context) error {
			res, err := s.get(ctx, p.ContextID, p.Type, p.ID)
			if err != nil {
				return err
			}
			if err := s.validateManageACL(ctx, info, res, caller); err != nil {
				return err
			}
			if !p.Force && p.Version != res.Version() {
				return common.NewError(common.CodeVersionConflict,
					"resource %q is at version %d, not %d", p.ID, res.Version(), p.Version)
			}
			if info.ACL.Kind == ACLRef && p.KeyID != "" {
				parent, err := s.fetchParent(ctx, p.ContextID, info, res.ACL.Parent)
				if err != nil {
					return err
				}
				if p.KeyID != parent.Last.KeyID {
					return common.NewError(common.CodeInvalidKey,
						"key %q is not the parent's current key", p.KeyID)
				}
			}

			props, err := s.commitBigBuffers(ctx, info.Props, p.Props, staged)
			if err != nil {
				return err
			}
			if err := s.releaseBigBuffers(ctx, info.Props, res.Last.Props); err != nil {
				return err
			}

			keyID := p.KeyID
			if keyID == "" {
				keyID = res.Last.KeyID
			}
			res.History = append(res.History, res.Last)
			res.Last = State{Created: nowMillis(), Author: caller, KeyID: keyID, Props: props}
			if err := s.repo(p.ContextID, p.Type).Update(ctx, *res); err != nil {
				return err
			}
			updated = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteResource removes a resource, its declared descendants, and the
// storage behind every committed bigbuffer, then adjusts the parent's stats
// when the resource is a ref child.
func (s *Service) DeleteResource(ctx context.Context, caller, contextID, typ, id string) error {
	s.metrics.IncOperation(component, "delete")
	if _, err := s.deleteResource(ctx, caller, contextID, typ, id); err != nil {
		s.metrics.IncError(component, "delete", string(common.CodeOf(err)))
		return err
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Action: notify.ActionDeleted, Entity: "resource", Type: typ,
		ContextID: contextID, ID: id, Actor: caller,
	})
	return nil
}

func (s *Service) deleteResource(ctx context.Context, caller, contextID, typ, id string) (*Resource, error) {
	info, err := s.registry.Get(typ)
	if err != nil {
		return nil, err
	}

	var deleted *Resource
	err = s.mgr.WithTransaction(ctx, func(ctx context.Context) error {
		return s.mgr.WithLock(ctx, []string{"resource-" + id}, func(ctx context.Context) error {
			res, err := s.get(ctx, contextID, typ, id)
			if err != nil {
				return err
			}
			if err := s.validateManageACL(ctx, info, res, caller); err != nil {
				return err
			}
			if err := s.deleteChildrenDeep(ctx, contextID, info, res.ID); err != nil {
				return err
			}
			if err := s.releaseBigBuffers(ctx, info.Props, res.Last.Props); err != nil {
				return err
			}
			if err := s.repo(contextID, typ).Delete(ctx, res.ID); err != nil {
				return err
			}
			deleted = res
			if info.ACL.Kind == ACLRef {
				parent, err := s.fetchParent(ctx, contextID, info, res.ACL.Parent)
				if err != nil {
					return err
				}
				return s.bumpStats(ctx, info, res.Type, parent, -1)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "resource deleted", "type", typ, "id", id, "context", contextID)
	return deleted, nil
}

// deleteChildrenDeep removes every declared descendant depth-first: the
// grandchildren of each child go first, then the child's buffers are
// released, then the whole child level is deleted in one sweep.
func (s *Service) deleteChildrenDeep(ctx context.Context, contextID string, info TypeInfo, parentID string) error {
	for _, childType := range info.Children {
		childInfo, err := s.registry.Get(childType)
		if err != nil {
			return err
		}
		children, err := s.repo(contextID, childType).FindAll(ctx, query.Eq("acl.parent", parentID))
		if err != nil {
			return err
		}
		for i := range children {
			if err := s.deleteChildrenDeep(ctx, contextID, childInfo, children[i].ID); err != nil {
				return err
			}
			if err := s.releaseBigBuffers(ctx, childInfo.Props, children[i].Last.Props); err != nil {
				return err
			}
		}
		if err := s.repo(contextID, childType).DeleteMany(ctx, query.Eq("acl.parent", parentID)); err != nil {
			return err
		}
	}
	return nil
}

// bumpStats adjusts the parent's counter for one child type, with one more
// hop to the grandparent when the parent's own type declares propagateStats.
func (s *Service) bumpStats(ctx context.Context, childInfo TypeInfo, childType string, parent *Resource, delta int64) error {
	parentInfo, err := s.registry.Get(childInfo.ACL.ParentType)
	if err != nil {
		return err
	}
	if slices.Contains(parentInfo.Stats, childType) {
		applyStat(parent, childType, delta)
		if err := s.repo(parent.ContextID, parent.Type).Update(ctx, *parent); err != nil {
			return err
		}
	}
	if parentInfo.ACL.Kind == ACLRef && parentInfo.ACL.PropagateStats {
		grand, err := s.fetchParent(ctx, parent.ContextID, parentInfo, parent.ACL.Parent)
		if err != nil {
			return err
		}
		grandInfo, err := s.registry.Get(parentInfo.ACL.ParentType)
		if err != nil {
			return err
		}
		if slices.Contains(grandInfo.Stats, childType) {
			applyStat(grand, childType, delta)
			return s.repo(grand.ContextID, grand.Type).Update(ctx, *grand)
		}
	}
	return nil
}

// DeleteByContext removes every resource of every registered type in the
// context, releasing committed buffers first. It backs the context-deletion
// cascade and performs no per-resource policy checks; the caller owns the
// decision.
func (s *Service) DeleteByContext(ctx context.Context, contextID string) error {
	for _, typ := range s.registry.Types() {
		info, err := s.registry.Get(typ)
		if err != nil {
			return err
		}
		rows, err := s.repo(contextID, typ).GetAll(ctx)
		if err != nil {
			return err
		}
		for i := range rows {
			if err := s.releaseBigBuffers(ctx, info.Props, rows[i].Last.Props); err != nil {
				return err
			}
		}
		if err := s.repo(contextID, typ).DeleteMany(ctx, query.Eq("contextId", contextID)); err != nil {
			return err
		}
	}
	return nil
}

func applyStat(res *Resource, childType string, delta int64) {
	if res.Stats == nil {
		res.Stats = make(map[string]Stat)
	}
	st := res.Stats[childType]
	st.Count += delta
	if st.Count < 0 {
		st.Count = 0
	}
	st.LastDate = nowMillis()
	res.Stats[childType] = st
}

func (s *Service) stagedFor(ctx context.Context, requestID string) (*upload.Staged, error) {
	if requestID == "" {
		return nil, nil
	}
	return s.staging.GetStagedUpload(ctx, requestID)
}

// bufferRefAt resolves a dotted path through the stored props to a
// committed buffer reference.
func bufferRefAt(props map[string]any, path string) (BufferRef, bool) {
	var cur any = props
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return BufferRef{}, false
		}
		cur, ok = m[seg]
		if !ok {
			return BufferRef{}, false
		}
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return BufferRef{}, false
	}
	fileID, ok := m["fileId"].(string)
	if !ok {
		return BufferRef{}, false
	}
	size, _ := toInt(m["size"])
	return BufferRef{FileID: fileID, Size: int64(size)}, true
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
