package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Hierarchy(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleUser))
	assert.True(t, RoleModerator.AtLeast(RoleDeveloper))
	assert.True(t, RoleDeveloper.AtLeast(RoleDeveloper))
	assert.False(t, RoleDeveloper.AtLeast(RoleModerator))
	assert.False(t, RoleUser.AtLeast(RoleDeveloper))

	assert.False(t, Role("ROOT").AtLeast(RoleUser))
	assert.False(t, RoleAdmin.AtLeast(Role("ROOT")))
	assert.Equal(t, -1, Role("ROOT").Rank())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" moderator ")
	require.NoError(t, err)
	assert.Equal(t, RoleModerator, r)

	_, err = ParseRole("superuser")
	assert.Error(t, err)
}

func TestSecurityContext_Unauthenticated(t *testing.T) {
	var nilCtx *SecurityContext
	for _, sc := range []*SecurityContext{nilCtx, NewSecurityContext(nil)} {
		assert.False(t, sc.IsAuthenticated())
		assert.False(t, sc.HasRole(RoleUser, RoleAdmin))
		assert.False(t, sc.HasMinRole(RoleUser))
		assert.False(t, sc.IsOwner("u1"))
		assert.False(t, sc.CanManage("u1", RoleAdmin))
	}
}

func TestSecurityContext_Predicates(t *testing.T) {
	sc := NewSecurityContext(&AuthenticatedUser{ID: "u1", Role: RoleDeveloper})

	assert.True(t, sc.IsAuthenticated())
	assert.True(t, sc.HasRole(RoleDeveloper))
	assert.True(t, sc.HasRole(RoleAdmin, RoleDeveloper))
	assert.False(t, sc.HasRole())
	assert.False(t, sc.HasRole(RoleModerator))

	assert.True(t, sc.HasMinRole(RoleUser))
	assert.True(t, sc.HasMinRole(RoleDeveloper))
	assert.False(t, sc.HasMinRole(RoleModerator))

	assert.True(t, sc.IsOwner("u1"))
	assert.False(t, sc.IsOwner("u2"))
	assert.False(t, sc.IsOwner(""))

	assert.True(t, sc.CanManage("u1"))
	assert.True(t, sc.CanManage("u2", RoleDeveloper))
	assert.False(t, sc.CanManage("u2", RoleAdmin))
}

func TestSecurityError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("update post: %w", NewSecurityError(CodeForbidden, "not owner"))

	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrUnauthenticated)

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, CodeForbidden, code)

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)

	assert.Equal(t, "FORBIDDEN: not owner", NewSecurityError(CodeForbidden, "not owner").Error())
	assert.Equal(t, "NOT_FOUND", ErrNotFound.Error())
}

func TestPublicMessage_DoesNotLeakReason(t *testing.T) {
	for _, code := range []ErrorCode{CodeUnauthenticated, CodeForbidden, CodeInvalidInput, CodeNotFound, "OTHER"} {
		msg := PublicMessage(code)
		assert.NotEmpty(t, msg)
		assert.NotContains(t, msg, "role")
		assert.NotContains(t, msg, "owner")
	}
}

func TestValidateID(t *testing.T) {
	id, err := ValidateID("  abc  ", "post id")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	for _, in := range []string{"", "   ", "\t\n"} {
		_, err := ValidateID(in, "post id")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Contains(t, err.Error(), "invalid post id")
	}
}
