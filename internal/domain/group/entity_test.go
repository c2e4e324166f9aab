package group

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestVisibilityWindow(t *testing.T) {
	owner, member, gone, stranger := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	g := Group{
		ID:        uuid.New(),
		CreatedBy: owner,
		IsActive:  true,
		Members: []Member{
			{UserID: owner, Role: RoleAdmin, JoinedAt: t0},
			{UserID: member, Role: RoleMember, JoinedAt: t0.Add(time.Hour)},
		},
		RemovedMembers: []Departure{
			{UserID: gone, JoinedAt: t0, At: t0.Add(3 * time.Hour), By: owner},
		},
	}

	w, ok := g.VisibilityWindow(member)
	assert.True(t, ok)
	assert.True(t, w.Open)
	assert.False(t, w.Contains(t0))
	assert.True(t, w.Contains(t0.Add(48*time.Hour)))

	w, ok = g.VisibilityWindow(gone)
	assert.True(t, ok)
	assert.True(t, w.Contains(t0.Add(3*time.Hour)))
	assert.False(t, w.Contains(t0.Add(3*time.Hour+time.Second)))

	_, ok = g.VisibilityWindow(stranger)
	assert.False(t, ok)

	assert.NoError(t, g.Validate())
	assert.True(t, g.IsAdmin(owner))
	assert.False(t, g.IsAdmin(member))
}

func TestDepartureReturnsLatest(t *testing.T) {
	u := uuid.New()
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	g := Group{
		LeftMembers:    []Departure{{UserID: u, At: t0}},
		RemovedMembers: []Departure{{UserID: u, At: t0.Add(time.Hour)}},
	}
	d, kind, ok := g.Departure(u)
	assert.True(t, ok)
	assert.Equal(t, DepartureRemoved, kind)
	assert.Equal(t, t0.Add(time.Hour), d.At)
}

func TestValidateRejectsDuplicates(t *testing.T) {
	owner, u := uuid.New(), uuid.New()
	g := Group{
		CreatedBy:   owner,
		IsActive:    true,
		Members:     []Member{{UserID: owner}, {UserID: u}},
		LeftMembers: []Departure{{UserID: u}},
	}
	assert.Error(t, g.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	g := Group{Members: []Member{{UserID: uuid.New()}}, LatestMessage: &LatestMessage{Text: "a"}}
	c := g.Clone()
	c.Members[0].UnreadCount = 4
	c.LatestMessage.Text = "b"
	assert.Equal(t, int64(0), g.Members[0].UnreadCount)
	assert.Equal(t, "a", g.LatestMessage.Text)
}
