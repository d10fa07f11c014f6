package enums

import "strings"

// UserRole is the staff role stored on users.role.
type UserRole string

const (
	UserRoleAdmin        UserRole = "admin"
	UserRoleTelesale     UserRole = "telesale"
	UserRoleTelesaleLead UserRole = "telesale_lead"
	UserRoleBackoffice   UserRole = "backoffice"
	UserRoleWarehouse    UserRole = "warehouse"
)

var validUserRoles = []UserRole{
	UserRoleAdmin,
	UserRoleTelesale,
	UserRoleTelesaleLead,
	UserRoleBackoffice,
	UserRoleWarehouse,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool { return known(r, validUserRoles) }

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	return parse("user role", strings.ToLower(strings.TrimSpace(value)), validUserRoles)
}

// ParseUserRoles converts a list of raw roles, failing on the first unknown one.
func ParseUserRoles(values []string) ([]UserRole, error) {
	out := make([]UserRole, 0, len(values))
	for _, value := range values {
		role, err := ParseUserRole(value)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}
