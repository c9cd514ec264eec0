package rbac

import (
	"context"
	"strings"
)

// Checker answers whether a role may perform an action such as
// "answerkey:update" or "correction:run". It knows nothing about owners;
// the answer key and correction services reject other teachers' records.
type Checker struct {
	RolePermissions map[string][]string
}

// NewChecker uses the default teacher/admin policy when rp is nil.
func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

func (c *Checker) Has(role, perm string) bool {
	for _, granted := range c.RolePermissions[role] {
		if grants(granted, perm) {
			return true
		}
	}
	return false
}

// Any is used by routes reachable through more than one permission.
func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

// grants matches a granted "resource:action" against a requested one.
// "*" grants everything and "resource:*" every action on that resource.
func grants(granted, perm string) bool {
	if granted == "*" || granted == perm {
		return true
	}
	resource, action, ok := strings.Cut(granted, ":")
	if !ok || action != "*" {
		return false
	}
	wantResource, _, ok := strings.Cut(perm, ":")
	return ok && wantResource == resource
}

type roleKey struct{}

// WithRole stores the caller's effective role, as resolved by the auth layer.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}
