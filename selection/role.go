package selection

import (
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a role name cannot be parsed.
var ErrUnknownRole = errors.New("unknown role")

// Role identifies which descriptor region a selection fills.
type Role string

const (
	// RoleInputParameters marks the code that declares solver inputs.
	RoleInputParameters Role = "input-parameters"

	// RoleCostFunction marks the objective being minimized or maximized.
	RoleCostFunction Role = "cost-function"

	// RoleAlgorithmLogic marks the search or optimization procedure.
	RoleAlgorithmLogic Role = "algorithm-logic"
)

// Roles lists every role in descriptor order.
var Roles = []Role{RoleInputParameters, RoleCostFunction, RoleAlgorithmLogic}

// FieldName returns the descriptor JSON field the role populates.
func (r Role) FieldName() string {
	switch r {
	case RoleInputParameters:
		return "inputParameters"
	case RoleCostFunction:
		return "costFunction"
	case RoleAlgorithmLogic:
		return "algorithmLogic"
	}
	return ""
}

// IsValid checks if the role is one of the known roles.
func (r Role) IsValid() bool {
	return r.FieldName() != ""
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// ParseRole accepts either the canonical role name or the descriptor field name.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if s == string(r) || s == r.FieldName() {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}
