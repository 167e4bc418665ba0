package policy

import (
	"slices"

	"github.com/covault/covault/internal/common"
)

// ContainerInfo is the slice of a container the engine needs for decisions.
type ContainerInfo struct {
	Creator  string
	Managers []string
	Users    []string
	Policy   *ContainerPolicy
}

// Engine evaluates policy decisions for one container kind. One generic
// evaluator parameterized by the kind's policy selector replaces a subclass
// per type.
type Engine struct {
	kind     Kind
	resolver RuleResolver
}

func NewEngine(kind Kind) *Engine {
	return &Engine{kind: kind, resolver: DefaultResolver}
}

// WithResolver swaps the rule grammar.
func (e *Engine) WithResolver(r RuleResolver) *Engine {
	e.resolver = r
	return e
}

func (e *Engine) Kind() Kind { return e.kind }

// Effective merges the context policy with the container's own fragment.
func (e *Engine) Effective(contextPolicy *ContextPolicy, own *ContainerPolicy) Effective {
	return Resolve(e.kind, contextPolicy, own)
}

func (e *Engine) containerRoles(sub Subject, c ContainerInfo) Roles {
	return RolesFor(sub, Target{Owner: c.Creator, Managers: c.Managers, Users: c.Users}, false)
}

// contextRoles covers decisions made outside any particular container; every
// subject passed in is already known to be a context member.
func contextRoles(sub Subject) Roles {
	roles := Roles{"all": true, "member": true, "user": true}
	if sub.ContextManager {
		roles["manager"] = true
	}
	return roles
}

// CanReadContainer decides the container-level get operation.
func (e *Engine) CanReadContainer(sub Subject, contextPolicy *ContextPolicy, c ContainerInfo) bool {
	eff := e.Effective(contextPolicy, c.Policy)
	return e.resolver(string(eff.Container.Get), e.containerRoles(sub, c))
}

// CanDeleteContainer decides the container-level delete operation.
func (e *Engine) CanDeleteContainer(sub Subject, contextPolicy *ContextPolicy, c ContainerInfo) bool {
	eff := e.Effective(contextPolicy, c.Policy)
	return e.resolver(string(eff.Container.Delete), e.containerRoles(sub, c))
}

// CanListAllContainers decides the context-scope listAll operation.
func (e *Engine) CanListAllContainers(sub Subject, contextPolicy *ContextPolicy) bool {
	eff := e.Effective(contextPolicy, nil)
	return e.resolver(string(eff.Container.ListAll), contextRoles(sub))
}

// CanListMyContainers decides the context-scope listMy operation.
func (e *Engine) CanListMyContainers(sub Subject, contextPolicy *ContextPolicy) bool {
	eff := e.Effective(contextPolicy, nil)
	return e.resolver(string(eff.Container.ListMy), contextRoles(sub))
}

// MakeCreateContainerCheck validates a container creation: the create rule,
// the creatorHasToBeManager flag, and the submitted policy fragment.
func (e *Engine) MakeCreateContainerCheck(sub Subject, contextPolicy *ContextPolicy,
	managers []string, own *ContainerPolicy) error {

	eff := e.Effective(contextPolicy, nil)
	if !e.resolver(string(eff.Container.Create), contextRoles(sub)) {
		return common.NewError(common.CodeAccessDenied, "creation of %s denied", e.kind)
	}
	if Flag(eff.Container.CreatorHasToBeManager) && !slices.Contains(managers, sub.UserID) {
		return common.NewError(common.CodeAccessDenied, "creator has to be a manager")
	}
	if own != nil {
		if err := own.Validate(); err != nil {
			return err
		}
		if !CanOverwrite(e.kind, contextPolicy) {
			return common.NewError(common.CodeAccessDenied, "context policy cannot be overwritten")
		}
	}
	return nil
}

// MakeUpdateContainerCheck validates a container update: the update rule,
// the manager-removal flags and, when the policy changes, the updatePolicy
// rule.
func (e *Engine) MakeUpdateContainerCheck(sub Subject, contextPolicy *ContextPolicy,
	old ContainerInfo, newManagers []string, newPolicy *ContainerPolicy) error {

	eff := e.Effective(contextPolicy, old.Policy)
	roles := e.containerRoles(sub, old)
	if !e.resolver(string(eff.Container.Update), roles) {
		return common.NewError(common.CodeAccessDenied, "update of %s denied", e.kind)
	}
	if !Flag(eff.Container.UpdaterCanBeRemovedFromManagers) &&
		slices.Contains(old.Managers, sub.UserID) && !slices.Contains(newManagers, sub.UserID) {
		return common.NewError(common.CodeAccessDenied, "updater cannot be removed from managers")
	}
	if !Flag(eff.Container.OwnerCanBeRemovedFromManagers) &&
		slices.Contains(old.Managers, old.Creator) && !slices.Contains(newManagers, old.Creator) {
		return common.NewError(common.CodeAccessDenied, "owner cannot be removed from managers")
	}
	if newPolicy != nil {
		if err := newPolicy.Validate(); err != nil {
			return err
		}
		if !CanOverwrite(e.kind, contextPolicy) {
			return common.NewError(common.CodeAccessDenied, "context policy cannot be overwritten")
		}
		if !e.resolver(string(eff.Container.UpdatePolicy), roles) {
			return common.NewError(common.CodeAccessDenied, "policy update denied")
		}
	}
	return nil
}

// Item-level decisions. The item creator holds the itemOwner role when the
// kind grants creator rights.

func (e *Engine) itemRoles(sub Subject, c ContainerInfo, itemCreator string) Roles {
	return RolesFor(sub, Target{
		Owner:       c.Creator,
		Managers:    c.Managers,
		Users:       c.Users,
		ItemCreator: itemCreator,
	}, e.kind.itemCreatorRights())
}

func (e *Engine) CanGetItem(sub Subject, contextPolicy *ContextPolicy, c ContainerInfo, itemCreator string) bool {
	eff := e.Effective(contextPolicy, c.Policy)
	return e.resolver(string(eff.Item.Get), e.itemRoles(sub, c, itemCreator))
}

func (e *Engine) CanCreateItem(sub Subject, contextPolicy *ContextPolicy, c ContainerInfo) bool {
	eff := e.Effective(contextPolicy, c.Policy)
	return e.resolver(string(eff.Item.Create), e.itemRoles(sub, c, ""))
}

func (e *Engine) CanUpdateItem(sub Subject, contextPolicy *ContextPolicy, c ContainerInfo, itemCreator string) bool {
	eff := e.Effective(contextPolicy, c.Policy)
	return e.resolver(string(eff.Item.Update), e.itemRoles(sub, c, itemCreator))
}

func (e *Engine) CanDeleteItem(sub Subject, contextPolicy *ContextPolicy, c ContainerInfo, itemCreator string) bool {
	eff := e.Effective(contextPolicy, c.Policy)
	return e.resolver(string(eff.Item.Delete), e.itemRoles(sub, c, itemCreator))
}

func (e *Engine) CanListMyItems(sub Subject, contextPolicy *ContextPolicy, c ContainerInfo) bool {
	eff := e.Effective(contextPolicy, c.Policy)
	return e.resolver(string(eff.Item.ListMy), e.itemRoles(sub, c, ""))
}

func (e *Engine) CanListAllItems(sub Subject, contextPolicy *ContextPolicy, c ContainerInfo) bool {
	eff := e.Effective(contextPolicy, c.Policy)
	return e.resolver(string(eff.Item.ListAll), e.itemRoles(sub, c, ""))
}
