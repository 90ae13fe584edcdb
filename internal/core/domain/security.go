package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "USER"
	RoleDeveloper Role = "DEVELOPER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

// roleRank is the fixed hierarchy used by HasMinRole. DEVELOPER and MODERATOR
// sit in adjacent slots even though their capabilities are not nested; use
// HasRole with an explicit set when that matters.
var roleRank = map[Role]int{
	RoleUser:      0,
	RoleDeveloper: 1,
	RoleModerator: 2,
	RoleAdmin:     3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns the role's hierarchy position, or -1 for unknown roles.
func (r Role) Rank() int {
	rank, ok := roleRank[r]
	if !ok {
		return -1
	}
	return rank
}

// AtLeast reports whether r sits at or above min. Unknown roles satisfy nothing.
func (r Role) AtLeast(min Role) bool {
	if !r.Valid() || !min.Valid() {
		return false
	}
	return r.Rank() >= min.Rank()
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Session is what the identity resolver knows about a request: just who it
// claims to be. Roles never come from here.
type Session struct {
	UserID string
}

// UserRecord is the system-of-record view of a user.
type UserRecord struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Username string `json:"username,omitempty"`
}

type AuthenticatedUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Username string `json:"username,omitempty"`
}

// SecurityContext bundles the resolved caller with permission predicates. It is
// built fresh for every evaluation and never cached.
type SecurityContext struct {
	User *AuthenticatedUser
}

func NewSecurityContext(user *AuthenticatedUser) *SecurityContext {
	return &SecurityContext{User: user}
}

func (c *SecurityContext) IsAuthenticated() bool {
	return c != nil && c.User != nil
}

func (c *SecurityContext) HasRole(roles ...Role) bool {
	if !c.IsAuthenticated() {
		return false
	}
	for _, r := range roles {
		if c.User.Role == r {
			return true
		}
	}
	return false
}

func (c *SecurityContext) HasMinRole(min Role) bool {
	if !c.IsAuthenticated() {
		return false
	}
	return c.User.Role.AtLeast(min)
}

func (c *SecurityContext) IsOwner(ownerID string) bool {
	if !c.IsAuthenticated() || ownerID == "" {
		return false
	}
	return c.User.ID == ownerID
}

func (c *SecurityContext) CanManage(ownerID string, roles ...Role) bool {
	return c.IsOwner(ownerID) || c.HasRole(roles...)
}
