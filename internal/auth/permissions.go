package auth

// Permission keys. Granted only via role membership.
const (
	PermProductRead            = "product:read"
	PermProductWrite           = "product:write"
	PermProductDelete          = "product:delete"
	PermProductManageVariants  = "product:manage_variants"
	PermProductManageImages    = "product:manage_images"
	PermProductManageInventory = "product:manage_inventory"

	PermCategoryRead            = "category:read"
	PermCategoryWrite           = "category:write"
	PermCategoryDelete          = "category:delete"
	PermCategoryManageHierarchy = "category:manage_hierarchy"

	PermOrderRead         = "order:read"
	PermOrderManage       = "order:manage"
	PermOrderUpdateStatus = "order:update_status"
	PermOrderManageItems  = "order:manage_items"

	PermUserRead        = "user:read"
	PermUserManage      = "user:manage"
	PermUserManageRoles = "user:manage_roles"

	PermPaymentRead          = "payment:read"
	PermPaymentProcess       = "payment:process"
	PermPaymentRefund        = "payment:refund"
	PermPaymentViewSensitive = "payment:view_sensitive"
)

// Role names. The set is fixed by the operator; their permission membership
// is not.
const (
	RoleSuperAdmin   = "super_admin"
	RoleStoreManager = "store_manager"
	RoleSupportStaff = "support_staff"
	RoleCustomer     = "customer"
)

// BuiltinPermissions is the permission catalog ensured at startup.
var BuiltinPermissions = []Permission{
	{Key: PermProductRead, Description: "View products"},
	{Key: PermProductWrite, Description: "Create and edit products"},
	{Key: PermProductDelete, Description: "Delete products"},
	{Key: PermProductManageVariants, Description: "Manage product variants"},
	{Key: PermProductManageImages, Description: "Manage product images"},
	{Key: PermProductManageInventory, Description: "Manage product inventory"},
	{Key: PermCategoryRead, Description: "View categories"},
	{Key: PermCategoryWrite, Description: "Create and edit categories"},
	{Key: PermCategoryDelete, Description: "Delete categories"},
	{Key: PermCategoryManageHierarchy, Description: "Manage the category tree"},
	{Key: PermOrderRead, Description: "View orders"},
	{Key: PermOrderManage, Description: "Manage orders"},
	{Key: PermOrderUpdateStatus, Description: "Update order status"},
	{Key: PermOrderManageItems, Description: "Manage order items"},
	{Key: PermUserRead, Description: "View users"},
	{Key: PermUserManage, Description: "Manage users"},
	{Key: PermUserManageRoles, Description: "Grant and revoke roles"},
	{Key: PermPaymentRead, Description: "View payments"},
	{Key: PermPaymentProcess, Description: "Process payments"},
	{Key: PermPaymentRefund, Description: "Refund payments"},
	{Key: PermPaymentViewSensitive, Description: "View sensitive payment data"},
}

// DefaultRolePermissions is the operator-defined default mapping. It is
// advisory seed data applied by the seed files, not an enforced constraint.
var DefaultRolePermissions = map[string][]string{
	RoleSuperAdmin: {
		PermProductRead, PermProductWrite, PermProductDelete,
		PermProductManageVariants, PermProductManageImages, PermProductManageInventory,
		PermCategoryRead, PermCategoryWrite, PermCategoryDelete, PermCategoryManageHierarchy,
		PermOrderRead, PermOrderManage, PermOrderUpdateStatus, PermOrderManageItems,
		PermUserRead, PermUserManage, PermUserManageRoles,
		PermPaymentRead, PermPaymentProcess, PermPaymentRefund, PermPaymentViewSensitive,
	},
	RoleStoreManager: {
		PermProductRead, PermProductWrite,
		PermProductManageVariants, PermProductManageImages, PermProductManageInventory,
		PermCategoryRead, PermCategoryWrite,
		PermOrderRead, PermOrderUpdateStatus, PermOrderManageItems,
		PermPaymentRead,
	},
	RoleSupportStaff: {
		PermOrderRead, PermOrderUpdateStatus,
		PermUserRead,
		PermPaymentRead,
	},
	RoleCustomer: {
		PermOrderRead,
		PermPaymentRead,
		PermProductRead,
	},
}
