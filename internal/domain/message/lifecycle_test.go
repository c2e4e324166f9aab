package message

import (
	"errors"
	"testing"
	"time"

	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	bob   = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	carol = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
	team  = uuid.MustParse("00000000-0000-0000-0000-0000000000f0")
	epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func direct(text string) Message {
	return Message{
		ID:         uuid.New(),
		SenderID:   alice,
		ReceiverID: uuid.NullUUID{UUID: bob, Valid: true},
		Type:       TypeText,
		Text:       text,
		CreatedAt:  epoch,
	}
}

func groupMsg(text string) Message {
	return Message{
		ID:        uuid.New(),
		SenderID:  alice,
		GroupID:   uuid.NullUUID{UUID: team, Valid: true},
		Type:      TypeText,
		Text:      text,
		CreatedAt: epoch,
	}
}

func TestEditWindow(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"fresh", time.Minute, nil},
		{"just inside", 11*time.Hour + 59*time.Minute, nil},
		{"exactly at the boundary", 12 * time.Hour, nil},
		{"one second late", 12*time.Hour + time.Second, relay_errors.ErrWindowExpired},
		{"days later", 72 * time.Hour, relay_errors.ErrWindowExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := direct("hi")
			now := epoch.Add(tt.elapsed)
			err := m.Edit(alice, "hello", now, DefaultModificationWindow)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, "hi", m.Text)
				assert.False(t, m.IsEdited)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "hello", m.Text)
			assert.True(t, m.IsEdited)
			assert.Equal(t, now, m.EditedAt.Time)
			assert.Equal(t, PhaseEdited, LifecycleOf(m).Phase)
		})
	}
}

func TestEditGuards(t *testing.T) {
	now := epoch.Add(time.Hour)

	m := direct("hi")
	assert.True(t, errors.Is(m.Edit(bob, "x", now, 0), relay_errors.ErrForbidden))

	img := direct("")
	img.Type = TypeImage
	img.MediaRef = "uploads/cat.png"
	assert.True(t, errors.Is(img.Edit(alice, "x", now, 0), relay_errors.ErrInvalidInput))

	empty := direct("hi")
	assert.True(t, errors.Is(empty.Edit(alice, "   ", now, 0), relay_errors.ErrInvalidInput))

	sys := groupMsg("alice created the group")
	sys.Type = TypeSystem
	assert.True(t, errors.Is(sys.Edit(alice, "x", now, 0), relay_errors.ErrInvalidInput))

	gone := direct("hi")
	_, err := gone.DeleteForEveryone(alice, now, 0)
	require.NoError(t, err)
	assert.True(t, errors.Is(gone.Edit(alice, "back", now, 0), relay_errors.ErrInvalidInput))
	assert.Equal(t, TombstoneText, gone.Text)
}

func TestDeleteForEveryoneIsAnIdempotentTombstone(t *testing.T) {
	m := direct("secret")
	now := epoch.Add(2 * time.Hour)

	changed, err := m.DeleteForEveryone(alice, now, DefaultModificationWindow)
	require.NoError(t, err)
	assert.True(t, changed)
	first := m.Clone()

	changed, err = m.DeleteForEveryone(alice, now.Add(time.Minute), DefaultModificationWindow)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, m)

	assert.Equal(t, TombstoneText, m.Text)
	assert.True(t, m.DeletedForEveryone)
	assert.True(t, m.IsEdited)
	assert.Equal(t, now, m.DeletedAt.Time)
	assert.Equal(t, PhaseTombstoned, LifecycleOf(m).Phase)
	assert.NoError(t, m.Validate())

	// the tombstone stays visible to both parties
	assert.True(t, m.VisibleTo(alice))
	assert.True(t, m.VisibleTo(bob))
}

func TestDeleteForEveryoneGuards(t *testing.T) {
	m := direct("hi")
	_, err := m.DeleteForEveryone(bob, epoch.Add(time.Minute), 0)
	assert.True(t, errors.Is(err, relay_errors.ErrForbidden))

	_, err = m.DeleteForEveryone(alice, epoch.Add(13*time.Hour), 0)
	assert.True(t, errors.Is(err, relay_errors.ErrWindowExpired))
	assert.Equal(t, "hi", m.Text)

	img := direct("")
	img.Type = TypeImage
	img.MediaRef = "uploads/cat.png"
	_, err = img.DeleteForEveryone(alice, epoch.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Empty(t, img.MediaRef)
}

func TestAsymmetricVisibilityDirect(t *testing.T) {
	m := direct("hi")

	changed, err := m.DeleteForMe(alice, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, m.VisibleTo(alice))
	assert.True(t, m.VisibleTo(bob))

	changed, err = m.DeleteForMe(bob, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, m.VisibleTo(alice))
	assert.False(t, m.VisibleTo(bob))
	assert.True(t, m.DeletedForSender)
	assert.True(t, m.DeletedForReceiver)

	changed, err = m.DeleteForMe(bob, false)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = m.DeleteForMe(carol, true)
	assert.True(t, errors.Is(err, relay_errors.ErrForbidden))
}

func TestDeleteForMeGroup(t *testing.T) {
	m := groupMsg("hello team")

	_, err := m.DeleteForMe(carol, false)
	assert.True(t, errors.Is(err, relay_errors.ErrForbidden))

	changed, err := m.DeleteForMe(carol, true)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = m.DeleteForMe(carol, true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []uuid.UUID{carol}, m.DeletedForUsers)

	// the sender flips the sender flag even without membership
	changed, err = m.DeleteForMe(alice, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, m.DeletedForSender)

	assert.False(t, m.VisibleTo(alice))
	assert.True(t, m.VisibleTo(bob))
	assert.False(t, m.VisibleTo(carol))
	assert.NoError(t, m.Validate())
}

func TestWithheldHiddenFromReceiverOnly(t *testing.T) {
	m := direct("psst")
	m.Withheld = true
	assert.True(t, m.VisibleTo(alice))
	assert.False(t, m.VisibleTo(bob))
}

func TestSystemMessagesIgnoreDeletion(t *testing.T) {
	m := groupMsg("bob left the group")
	m.Type = TypeSystem
	_, err := m.DeleteForMe(bob, true)
	assert.True(t, errors.Is(err, relay_errors.ErrInvalidInput))
	assert.True(t, m.VisibleTo(carol))
}

func TestValidateMutualExclusivity(t *testing.T) {
	both := direct("hi")
	both.GroupID = uuid.NullUUID{UUID: team, Valid: true}
	assert.Error(t, both.Validate())

	neither := direct("hi")
	neither.ReceiverID = uuid.NullUUID{}
	assert.Error(t, neither.Validate())

	assert.NoError(t, direct("hi").Validate())
	assert.NoError(t, groupMsg("hi").Validate())
}

func TestLifecycleProjectionRoundTrip(t *testing.T) {
	l := Lifecycle{
		Phase:          PhaseTombstoned,
		EditedAt:       epoch,
		DeletedAt:      epoch,
		HiddenForUsers: []uuid.UUID{bob},
	}
	f := l.Project()
	assert.True(t, f.IsEdited)
	assert.True(t, f.DeletedForEveryone)
	assert.Equal(t, []uuid.UUID{bob}, f.DeletedForUsers)
	assert.True(t, l.PartiallyDeleted())

	m := groupMsg(TombstoneText)
	m.setLifecycle(l)
	assert.Equal(t, l, LifecycleOf(m))
}

func TestValidateContent(t *testing.T) {
	assert.NoError(t, ValidateContent(TypeText, "hi", ""))
	assert.Error(t, ValidateContent(TypeText, "hi", "uploads/x.png"))
	assert.NoError(t, ValidateContent(TypeVideo, "", "uploads/x.mp4"))
	assert.Error(t, ValidateContent(TypeVideo, "", ""))
	assert.Error(t, ValidateContent(TypeImage, "caption", "uploads/x.png"))
	assert.Error(t, ValidateContent(Type("audio"), "", "x"))

	typ, err := ParseType("")
	require.NoError(t, err)
	assert.Equal(t, TypeText, typ)
	_, err = ParseType("sticker")
	assert.Error(t, err)
}
