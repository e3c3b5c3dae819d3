package membership

import "time"

// Permission is an atomic capability key.
type Permission string

// Permission universe for the marketplace core.
const (
	PermOrdersCreate         Permission = "orders.create"
	PermOrdersAccept         Permission = "orders.accept"
	PermOrdersTransition     Permission = "orders.transition"
	PermOrdersReview         Permission = "orders.review"
	PermOrdersRework         Permission = "orders.rework"
	PermOrdersView           Permission = "orders.view"
	PermOrdersViewFinancials Permission = "orders.view_financials"
	PermMembersManage        Permission = "members.manage"
)

// AllPermissions returns the full permission universe.
func AllPermissions() []Permission {
	return []Permission{
		PermOrdersCreate,
		PermOrdersAccept,
		PermOrdersTransition,
		PermOrdersReview,
		PermOrdersRework,
		PermOrdersView,
		PermOrdersViewFinancials,
		PermMembersManage,
	}
}

// CompanyType distinguishes the two marketplace parties.
type CompanyType string

const (
	CompanyTypeBrand    CompanyType = "BRAND"
	CompanyTypeSupplier CompanyType = "SUPPLIER"
)

// CompanyRole is the permission template assigned to a member.
type CompanyRole string

const (
	RoleOwner    CompanyRole = "OWNER"
	RoleManager  CompanyRole = "MANAGER"
	RoleOperator CompanyRole = "OPERATOR"
	RoleViewer   CompanyRole = "VIEWER"
)

// CompanyUser is a user's membership in a company.
type CompanyUser struct {
	UserID         int64
	CompanyID      int64
	CompanyType    CompanyType
	Role           CompanyRole
	IsCompanyAdmin bool
	IsActive       bool
	DisplayName    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PermissionOverride layers a grant or deny on top of the role template.
// The repository enforces uniqueness of (user, company, permission) so
// application order never matters.
type PermissionOverride struct {
	UserID     int64
	CompanyID  int64
	Permission Permission
	Granted    bool
	CreatedAt  time.Time
}

// Actor is a resolved, pre-authorized identity handed to the order core.
type Actor struct {
	CompanyUser
	Permissions PermissionSet
}

// Has reports whether the actor holds the permission.
func (a Actor) Has(p Permission) bool {
	return a.Permissions.Has(p)
}

// IsBrand reports whether the actor acts for a brand company.
func (a Actor) IsBrand() bool { return a.CompanyType == CompanyTypeBrand }

// IsSupplier reports whether the actor acts for a supplier company.
func (a Actor) IsSupplier() bool { return a.CompanyType == CompanyTypeSupplier }
