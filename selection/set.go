package selection

// Set holds one Selection per role. Assigning a role replaces whatever was
// there; selections are never merged or appended.
//
// The zero value is ready to use. Set is not safe for concurrent use.
type Set struct {
	slots map[Role]Selection
}

// Assign binds sel to role, discarding any previous selection for that role.
func (s *Set) Assign(role Role, sel Selection) error {
	if !role.IsValid() {
		return ErrUnknownRole
	}
	if s.slots == nil {
		s.slots = make(map[Role]Selection, len(Roles))
	}
	s.slots[role] = sel
	return nil
}

// Get returns the selection for role and whether one is assigned.
func (s *Set) Get(role Role) (Selection, bool) {
	sel, ok := s.slots[role]
	return sel, ok
}

// Clear removes the selection for role.
func (s *Set) Clear(role Role) {
	delete(s.slots, role)
}

// Reset removes all selections.
func (s *Set) Reset() {
	s.slots = nil
}

// Missing returns the roles with no selection, in descriptor order.
func (s *Set) Missing() []Role {
	var missing []Role
	for _, r := range Roles {
		if _, ok := s.slots[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// Len returns the number of assigned roles.
func (s *Set) Len() int {
	return len(s.slots)
}
