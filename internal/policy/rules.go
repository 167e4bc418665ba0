package policy

import "strings"

// Roles is the set of role keywords a subject holds for one decision.
type Roles map[string]bool

// RuleResolver decides whether a rule string grants access to a subject
// holding the given roles. The default grammar treats a rule as
// comma-separated alternatives of &-joined role keywords; the exact grammar
// is deliberately pluggable.
type RuleResolver func(rule string, roles Roles) bool

// DefaultResolver implements the keyword grammar: "owner,manager" grants
// owners or managers, "user&itemOwner" grants users who created the item,
// "all" grants every context member, "no"/"none" grants nobody.
func DefaultResolver(rule string, roles Roles) bool {
	rule = strings.TrimSpace(rule)
	if rule == "" || strings.EqualFold(rule, string(No)) || strings.EqualFold(rule, "none") {
		return false
	}
	if strings.EqualFold(rule, string(Yes)) {
		return true
	}
	for _, group := range strings.Split(rule, ",") {
		granted := true
		for _, keyword := range strings.Split(group, "&") {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword == "" || !roles[keyword] {
				granted = false
				break
			}
		}
		if granted {
			return true
		}
	}
	return false
}

// Flag interprets a yes/no policy entry.
func Flag(e Entry) bool {
	return strings.EqualFold(string(e), string(Yes)) || strings.EqualFold(string(e), "true")
}

// Subject is the caller as seen by one policy decision.
type Subject struct {
	UserID string
	// ContextManager marks context-level managers, who hold the manager role
	// in decisions made outside any particular container.
	ContextManager bool
}

// Target carries the membership the decision is made against. Container
// decisions fill it from the container; context-scope decisions leave the
// lists empty and rely on the subject's context role.
type Target struct {
	Owner       string
	Managers    []string
	Users       []string
	ItemCreator string
}

// RolesFor computes the subject's role keywords against the target.
// Every authenticated context member holds "all".
func RolesFor(sub Subject, tgt Target, itemCreatorRights bool) Roles {
	roles := Roles{"all": true}
	if sub.ContextManager {
		roles["manager"] = true
	}
	if tgt.Owner != "" && tgt.Owner == sub.UserID {
		roles["owner"] = true
		roles["member"] = true
	}
	for _, m := range tgt.Managers {
		if m == sub.UserID {
			roles["manager"] = true
			roles["member"] = true
		}
	}
	for _, u := range tgt.Users {
		if u == sub.UserID {
			roles["user"] = true
			roles["member"] = true
		}
	}
	if itemCreatorRights && tgt.ItemCreator != "" && tgt.ItemCreator == sub.UserID {
		roles["itemowner"] = true
	}
	return roles
}
