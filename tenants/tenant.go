package tenants

import (
	"fmt"
	"strings"
)

// Role is the permission level a user holds inside a shop. It is embedded in console URLs.
type Role string

const (
	RoleAdmin   Role = "admin"   // Owner level, manages staff, cashbox and settings
	RoleManager Role = "manager" // Manages stock, products and orders
	RoleSeller  Role = "seller"  // Sells from stock and records debts
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:   {},
	RoleManager: {},
	RoleSeller:  {},
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// ParseRole normalises and validates a role string
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Shop is a tenant of the retail API together with the current user's role in it.
type Shop struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// AccessCheck is the remote answer to "does this session still have access to the shop".
type AccessCheck struct {
	HasAccess bool `json:"has_access"`
	Role      Role `json:"role"`
}
