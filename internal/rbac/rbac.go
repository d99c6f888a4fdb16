// Package rbac maps roles to permissions and answers access questions
// for handlers and middlewares.
package rbac

import "github.com/geocoder89/seodash/internal/domain/user"

type Permission string

const (
	ManageUsers  Permission = "manage_users"
	CreateUsers  Permission = "create_users"
	ViewAllUsers Permission = "view_all_users"
	EditUsers    Permission = "edit_users"
	DeleteUsers  Permission = "delete_users"

	ViewOwnData   Permission = "view_own_data"
	ViewAllData   Permission = "view_all_data"
	EditOwnData   Permission = "edit_own_data"
	EditAllData   Permission = "edit_all_data"
	DeleteOwnData Permission = "delete_own_data"
	DeleteAllData Permission = "delete_all_data"

	CreateReports    Permission = "create_reports"
	ViewOwnReports   Permission = "view_own_reports"
	ViewAllReports   Permission = "view_all_reports"
	DeleteOwnReports Permission = "delete_own_reports"
	DeleteAllReports Permission = "delete_all_reports"

	ManageSiteLinks Permission = "manage_site_links"
	AssignSiteLinks Permission = "assign_site_links"

	AccessPageSpeed     Permission = "access_pagespeed"
	AccessSearchConsole Permission = "access_search_console"
	AccessReports       Permission = "access_reports"
	AccessAdminPanel    Permission = "access_admin_panel"
)

var allPermissions = []Permission{
	ManageUsers, CreateUsers, ViewAllUsers, EditUsers, DeleteUsers,
	ViewOwnData, ViewAllData, EditOwnData, EditAllData, DeleteOwnData, DeleteAllData,
	CreateReports, ViewOwnReports, ViewAllReports, DeleteOwnReports, DeleteAllReports,
	ManageSiteLinks, AssignSiteLinks,
	AccessPageSpeed, AccessSearchConsole, AccessReports, AccessAdminPanel,
}

var rolePermissions = map[string]map[Permission]struct{}{
	user.RoleSuperAdmin: setOf(allPermissions...),
	user.RoleUser: setOf(
		ViewOwnData, EditOwnData, DeleteOwnData,
		CreateReports, ViewOwnReports, DeleteOwnReports,
		AccessPageSpeed, AccessSearchConsole, AccessReports,
	),
	user.RoleViewer: setOf(
		ViewOwnData, ViewOwnReports,
		AccessPageSpeed, AccessSearchConsole, AccessReports,
	),
}

func setOf(perms ...Permission) map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		m[p] = struct{}{}
	}
	return m
}

func HasPermission(role string, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

func HasAnyPermission(role string, perms ...Permission) bool {
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

func HasAllPermissions(role string, perms ...Permission) bool {
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// CanAccessResource decides whether userID (acting as role) may use perm on
// a resource owned by ownerID. Ownership alone is not enough: the role must
// still hold perm.
func CanAccessResource(role, userID, ownerID string, perm Permission) bool {
	switch {
	case role == user.RoleSuperAdmin:
		return HasPermission(role, perm)
	case userID != "" && userID == ownerID:
		return HasPermission(role, perm)
	case role == user.RoleViewer:
		return HasPermission(role, perm)
	}
	return false
}

func CanWrite(role string) bool {
	return role == user.RoleSuperAdmin || role == user.RoleUser
}

func IsSuperAdmin(role string) bool { return role == user.RoleSuperAdmin }
func IsViewer(role string) bool     { return role == user.RoleViewer }

func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// AssignableRole reports whether an admin may grant role through the API.
// super_admin is only ever seeded from configuration.
func AssignableRole(role string) bool {
	return role == user.RoleUser || role == user.RoleViewer
}

// AccessibleSites lists the site URLs u may query metrics for.
func AccessibleSites(u user.User) []string {
	switch u.Role {
	case user.RoleSuperAdmin, user.RoleViewer:
		if u.AccessibleSites == nil {
			return []string{}
		}
		return u.AccessibleSites
	case user.RoleUser:
		if site := u.Site(); site != "" {
			return []string{site}
		}
	}
	return []string{}
}
