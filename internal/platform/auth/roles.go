package auth

import (
	"context"
	"strings"
)

const RoleAdmin = "admin"

// IsAdmin reports whether role names the elevated admin role (case-insensitive).
func IsAdmin(role string) bool {
	return strings.EqualFold(strings.TrimSpace(role), RoleAdmin)
}

// IsAdminContext reports whether RequireUser injected the admin role.
func IsAdminContext(ctx context.Context) bool {
	role, _ := RoleFromContext(ctx)
	return IsAdmin(role)
}
