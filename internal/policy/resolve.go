package policy

// Effective is the fully merged ruleset applied to one container: its own
// fragment (when allowed), over the type default, over the context default,
// over the built-in fallback.
type Effective struct {
	Container ContainerPolicy
	Item      ItemPolicy
}

// Built-in outermost defaults.
var (
	defaultContainer = ContainerPolicy{
		Get:     "member",
		ListMy:  "member",
		ListAll: "manager",
		Create:  "all",
		Update:  "manager",
		Delete:  "manager",

		UpdatePolicy:                    "manager",
		CreatorHasToBeManager:           Yes,
		UpdaterCanBeRemovedFromManagers: No,
		OwnerCanBeRemovedFromManagers:   No,
		CanOverwriteContextPolicy:       Yes,
	}
	defaultItem = ItemPolicy{
		Get:     "member",
		ListMy:  "member",
		ListAll: "manager",
		Create:  "member",
		Update:  "itemOwner,manager",
		Delete:  "itemOwner,manager",
	}
)

// Resolve merges the three layers for one container of the given kind. The
// own fragment participates only when the canOverwriteContextPolicy flag
// allows it, and that flag is resolved from the outer layers, never from the
// fragment itself.
func Resolve(kind Kind, contextPolicy *ContextPolicy, own *ContainerPolicy) Effective {
	typePolicy := kind.FromContext(contextPolicy)

	if !CanOverwrite(kind, contextPolicy) {
		own = nil
	}

	var eff Effective
	eff.Container = mergeContainer(own, typePolicy)
	eff.Item = mergeItem(ownItem(own), ownItem(typePolicy), contextItem(contextPolicy))
	return eff
}

// CanOverwrite resolves whether containers of this kind may carry their own
// policy fragment in this context.
func CanOverwrite(kind Kind, contextPolicy *ContextPolicy) bool {
	typePolicy := kind.FromContext(contextPolicy)
	flag := defaultContainer.CanOverwriteContextPolicy
	if typePolicy != nil && typePolicy.CanOverwriteContextPolicy != "" {
		flag = typePolicy.CanOverwriteContextPolicy
	}
	return flag == Yes
}

func mergeContainer(layers ...*ContainerPolicy) ContainerPolicy {
	pick := func(get func(*ContainerPolicy) Entry) Entry {
		for _, layer := range layers {
			if layer == nil {
				continue
			}
			if v := get(layer); v != "" {
				return v
			}
		}
		return get(&defaultContainer)
	}
	return ContainerPolicy{
		Get:     pick(func(p *ContainerPolicy) Entry { return p.Get }),
		ListMy:  pick(func(p *ContainerPolicy) Entry { return p.ListMy }),
		ListAll: pick(func(p *ContainerPolicy) Entry { return p.ListAll }),
		Create:  pick(func(p *ContainerPolicy) Entry { return p.Create }),
		Update:  pick(func(p *ContainerPolicy) Entry { return p.Update }),
		Delete:  pick(func(p *ContainerPolicy) Entry { return p.Delete }),

		UpdatePolicy:                    pick(func(p *ContainerPolicy) Entry { return p.UpdatePolicy }),
		CreatorHasToBeManager:           pick(func(p *ContainerPolicy) Entry { return p.CreatorHasToBeManager }),
		UpdaterCanBeRemovedFromManagers: pick(func(p *ContainerPolicy) Entry { return p.UpdaterCanBeRemovedFromManagers }),
		OwnerCanBeRemovedFromManagers:   pick(func(p *ContainerPolicy) Entry { return p.OwnerCanBeRemovedFromManagers }),
		CanOverwriteContextPolicy:       pick(func(p *ContainerPolicy) Entry { return p.CanOverwriteContextPolicy }),
	}
}

func mergeItem(layers ...*ItemPolicy) ItemPolicy {
	pick := func(get func(*ItemPolicy) Entry) Entry {
		for _, layer := range layers {
			if layer == nil {
				continue
			}
			if v := get(layer); v != "" {
				return v
			}
		}
		return get(&defaultItem)
	}
	return ItemPolicy{
		Get:     pick(func(p *ItemPolicy) Entry { return p.Get }),
		ListMy:  pick(func(p *ItemPolicy) Entry { return p.ListMy }),
		ListAll: pick(func(p *ItemPolicy) Entry { return p.ListAll }),
		Create:  pick(func(p *ItemPolicy) Entry { return p.Create }),
		Update:  pick(func(p *ItemPolicy) Entry { return p.Update }),
		Delete:  pick(func(p *ItemPolicy) Entry { return p.Delete }),
	}
}

func ownItem(p *ContainerPolicy) *ItemPolicy {
	if p == nil {
		return nil
	}
	return p.Item
}

func contextItem(p *ContextPolicy) *ItemPolicy {
	if p == nil {
		return nil
	}
	return p.Item
}
