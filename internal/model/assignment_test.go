package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRoleEffectiveAt(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Hour)

	cases := []struct {
		name string
		ur   UserRole
		want bool
	}{
		{"open ended", UserRole{IsActive: true, EffectiveFrom: now.Add(-time.Hour)}, true},
		{"inactive", UserRole{IsActive: false, EffectiveFrom: now.Add(-time.Hour)}, false},
		{"not yet effective", UserRole{IsActive: true, EffectiveFrom: now.Add(time.Hour)}, false},
		{"inside window", UserRole{IsActive: true, EffectiveFrom: now.Add(-time.Hour), EffectiveUntil: &until}, true},
		{"expired", UserRole{IsActive: true, EffectiveFrom: now.Add(-2 * time.Hour), EffectiveUntil: &now}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.ur.EffectiveAt(now))
		})
	}

	// The end of the window is exclusive.
	boundary := UserRole{IsActive: true, EffectiveFrom: now.Add(-time.Hour), EffectiveUntil: &now}
	assert.False(t, boundary.EffectiveAt(now))
}

func TestUserPermissionEffectiveAt(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)

	live := UserPermission{IsActive: true, EffectiveFrom: now.Add(-time.Minute), EffectiveUntil: &until}
	assert.True(t, live.EffectiveAt(now))
	assert.False(t, live.EffectiveAt(now.Add(2*time.Minute)))
	assert.False(t, live.EffectiveAt(now.Add(-2*time.Minute)))

	live.IsActive = false
	assert.False(t, live.EffectiveAt(now))
}

func TestUserPermissionBeforeCreateDefaults(t *testing.T) {
	up := UserPermission{UserID: uuid.New(), PermissionID: uuid.New(), IsGranted: true}
	require.NoError(t, up.BeforeCreate(nil))

	assert.NotEqual(t, uuid.Nil, up.ID)
	assert.False(t, up.EffectiveFrom.IsZero())
	assert.Equal(t, "{}", up.Conditions)

	// Explicit values survive the hook.
	id := uuid.New()
	from := time.Now().Add(-time.Hour)
	up = UserPermission{ID: id, EffectiveFrom: from, Conditions: `{"branch":"PP01"}`}
	require.NoError(t, up.BeforeCreate(nil))
	assert.Equal(t, id, up.ID)
	assert.Equal(t, from, up.EffectiveFrom)
	assert.Equal(t, `{"branch":"PP01"}`, up.Conditions)
}
