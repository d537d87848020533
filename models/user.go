package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRole represents the role of a user. Roles outside the predefined set are
// accepted and treated as regular (non-admin) roles.
type UserRole string

const (
	RoleSysAdmin    UserRole = "SYSADMIN"
	RoleClientAdmin UserRole = "CLIENTADMIN"
	RoleObserver    UserRole = "OBSERVER"
)

// User represents an account that can sign in to the dashboard
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email    string             `bson:"email" json:"email"`
	FullName string             `bson:"full_name" json:"full_name"`

	// Authentication
	PasswordHash string `bson:"password_hash" json:"-"`

	// Status
	IsActive    bool      `bson:"is_active" json:"is_active"`
	LastLogin   time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
	LastSignOut time.Time `bson:"last_sign_out,omitempty" json:"last_sign_out,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// UserRoleAssignment is a row of the user_roles collection
type UserRoleAssignment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Role      UserRole           `bson:"role" json:"role"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// RolePermissions defines what each role can do
type RolePermissions struct {
	Role        UserRole
	Description string
	Permissions []string
}

// Permissions checked by route middleware
const (
	PermViewDashboard     = "view_dashboard"
	PermManageFeedback    = "manage_feedback"
	PermAnalyzeFeedback   = "analyze_feedback"
	PermSyncSocial        = "sync_social"
	PermManageBilling     = "manage_billing"
	PermManageSystem      = "manage_system"
	PermManageOrgSettings = "manage_organization"
)

// GetRolePermissions returns the permissions for each role
func GetRolePermissions() map[UserRole]RolePermissions {
	return map[UserRole]RolePermissions{
		RoleSysAdmin: {
			Role:        RoleSysAdmin,
			Description: "Platform operator",
			Permissions: []string{
				PermViewDashboard,
				PermManageFeedback,
				PermAnalyzeFeedback,
				PermSyncSocial,
				PermManageBilling,
				PermManageOrgSettings,
				PermManageSystem,
			},
		},
		RoleClientAdmin: {
			Role:        RoleClientAdmin,
			Description: "Organization administrator",
			Permissions: []string{
				PermViewDashboard,
				PermManageFeedback,
				PermAnalyzeFeedback,
				PermSyncSocial,
				PermManageBilling,
				PermManageOrgSettings,
			},
		},
		RoleObserver: {
			Role:        RoleObserver,
			Description: "Read-only dashboard access",
			Permissions: []string{
				PermViewDashboard,
			},
		},
	}
}

// HasPermission checks if a role has a specific permission
func (r UserRole) HasPermission(permission string) bool {
	rolePerms, exists := GetRolePermissions()[r]
	if !exists {
		return false
	}
	for _, perm := range rolePerms.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role gets the shorter admin session timeout
func (r UserRole) IsAdmin() bool {
	return r == RoleSysAdmin
}
