package membership

// PermissionSet is an effective set of permissions.
type PermissionSet map[Permission]struct{}

// Has reports set membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// List returns the permissions in unspecified order.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

var roleTemplates = map[CompanyRole][]Permission{
	RoleOwner: {
		PermOrdersCreate, PermOrdersAccept, PermOrdersTransition,
		PermOrdersReview, PermOrdersRework, PermOrdersView,
		PermOrdersViewFinancials, PermMembersManage,
	},
	RoleManager: {
		PermOrdersCreate, PermOrdersAccept, PermOrdersTransition,
		PermOrdersReview, PermOrdersRework, PermOrdersView,
		PermOrdersViewFinancials,
	},
	RoleOperator: {
		PermOrdersAccept, PermOrdersTransition, PermOrdersView,
	},
	RoleViewer: {
		PermOrdersView,
	},
}

// RoleTemplate returns the static permission template for a role.
func RoleTemplate(role CompanyRole) []Permission {
	return append([]Permission(nil), roleTemplates[role]...)
}

// Resolve merges a member's role template with per-user overrides into the
// effective permission set. Members flagged as company admin hold the full
// universe regardless of role or overrides. Overrides are unique per
// permission key; granted adds, denied removes. Pure function of its inputs.
func Resolve(user CompanyUser, overrides []PermissionOverride) PermissionSet {
	set := make(PermissionSet)
	if user.IsCompanyAdmin {
		for _, p := range AllPermissions() {
			set[p] = struct{}{}
		}
		return set
	}
	for _, p := range roleTemplates[user.Role] {
		set[p] = struct{}{}
	}
	for _, ov := range overrides {
		if ov.Granted {
			set[ov.Permission] = struct{}{}
		} else {
			delete(set, ov.Permission)
		}
	}
	return set
}
