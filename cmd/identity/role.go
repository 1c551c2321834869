package identity

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// Role is a closed set of authorization roles.
type Role uint8

const (
	RoleCustomer Role = iota + 1
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleCustomer: "ROLE_CUSTOMER",
	RoleAdmin:    "ROLE_ADMIN",
}

// AllRoles lists every defined role in a stable order.
func AllRoles() []Role { return []Role{RoleCustomer, RoleAdmin} }

// String returns the wire name, e.g. "ROLE_ADMIN".
func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Valid reports whether r is a defined role.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole accepts "ROLE_ADMIN" or "ADMIN", case-insensitively.
func ParseRole(s string) (Role, error) {
	n := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(n, "ROLE_") {
		n = "ROLE_" + n
	}
	for r, name := range roleNames {
		if name == n {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: undefined role %d", ErrInvalidInput, uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleSet is a bitset of roles. The zero value is empty.
type RoleSet uint8

// NewRoleSet returns a set with the given roles. Undefined roles are dropped.
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.Add(r)
	}
	return s
}

// ParseRoleSet parses wire names; any unknown name fails the whole set.
func ParseRoleSet(names []string) (RoleSet, error) {
	var s RoleSet
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return 0, err
		}
		s = s.Add(r)
	}
	return s, nil
}

func (s RoleSet) Add(r Role) RoleSet {
	if !r.Valid() {
		return s
	}
	return s | 1<<r
}

func (s RoleSet) Has(r Role) bool { return r.Valid() && s&(1<<r) != 0 }

func (s RoleSet) Len() int { return bits.OnesCount8(uint8(s)) }

func (s RoleSet) IsEmpty() bool { return s == 0 }

// Roles returns members in AllRoles order.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, s.Len())
	for _, r := range AllRoles() {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Strings returns sorted wire names.
func (s RoleSet) Strings() []string {
	out := make([]string, 0, s.Len())
	for _, r := range s.Roles() {
		out = append(out, r.String())
	}
	sort.Strings(out)
	return out
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *RoleSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	parsed, err := ParseRoleSet(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
