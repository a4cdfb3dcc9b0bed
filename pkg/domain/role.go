package domain

import dErrors "fintrail/pkg/domain-errors"

// Role is the coarse authorization level of a user.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleAuditor Role = "auditor"
)

var validRoles = map[Role]bool{
	RoleUser:    true,
	RoleAdmin:   true,
	RoleAuditor: true,
}

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}
