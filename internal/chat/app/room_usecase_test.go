package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"case_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRoomUseCase_CreateRoom(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	room, err := f.roomUC.CreateRoom(ctx, testCase)
	require.NoError(t, err)

	assert.NotEmpty(t, room.ID)
	assert.Equal(t, "case-1", room.CaseID)
	assert.Equal(t, "C-001", room.CaseNumber)
	assert.Equal(t, "client-1", room.ClientID)
	assert.Equal(t, "lawyer-1", room.LawyerID)
	assert.Equal(t, "user-k", room.ClientUserID)
	assert.Equal(t, "user-l", room.LawyerUserID)
	assert.Equal(t, "Kim", room.ClientName)
	assert.Equal(t, "Lee", room.LawyerName)
	assert.True(t, room.IsActive)
	assert.Equal(t, room.CreatedAt, room.UpdatedAt)

	// 兩位參與者各收到一則 case_assigned
	clientNotes := f.notifs.byType("user-k", domain.NotificationCaseAssigned)
	lawyerNotes := f.notifs.byType("user-l", domain.NotificationCaseAssigned)
	require.Len(t, clientNotes, 1)
	require.Len(t, lawyerNotes, 1)
	assert.Equal(t, "Chat room created for case C-001", clientNotes[0].Title)
	assert.Equal(t, "You can now chat with your assigned lawyer", clientNotes[0].Body)
	assert.Equal(t, "You can now chat with your client", lawyerNotes[0].Body)
	assert.Equal(t, room.ID, clientNotes[0].RoomID)
}

func TestRoomUseCase_CreateRoomTwiceReturnsExisting(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	first := f.openRoom(t)

	second, err := f.roomUC.CreateRoom(ctx, testCase)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	// 不重複通知
	assert.Len(t, f.notifs.byType("user-k", domain.NotificationCaseAssigned), 1)
}

func TestRoomUseCase_CreateRoomConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	const n = 8
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := f.roomUC.CreateRoom(ctx, testCase)
			errs[i] = err
			if room != nil {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		if errs[i] == nil {
			created++
		} else {
			assert.ErrorIs(t, errs[i], domain.ErrAlreadyExists)
		}
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, created)

	rooms, err := f.rooms.ListByParticipant(ctx, domain.RoleClient, "client-1", false)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestRoomUseCase_CreateRoomInvalid(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	tests := []struct {
		name string
		ref  domain.CaseRef
		want error
	}{
		{"empty case id", domain.CaseRef{LawyerID: "lawyer-1", ClientID: "client-1"}, domain.ErrValidation},
		{"no lawyer", domain.CaseRef{CaseID: "case-2", ClientID: "client-1"}, domain.ErrInvalidState},
		{"no client", domain.CaseRef{CaseID: "case-3", LawyerID: "lawyer-1"}, domain.ErrInvalidState},
		{"unknown lawyer", domain.CaseRef{CaseID: "case-4", ClientID: "client-1", LawyerID: "ghost"}, domain.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, err := f.roomUC.CreateRoom(ctx, tt.ref)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, room)
		})
	}
}

func TestRoomUseCase_NotificationFailureDoesNotFailCreate(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil, errors.New("mongo down"))
	uc := NewRoomUseCase(f.rooms, f.dir, f.guard, notifier)

	room, err := uc.CreateRoom(ctx, testCase)
	require.NoError(t, err)
	assert.NotNil(t, room)
	notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestRoomUseCase_CreateRoomForCase(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	room, err := f.roomUC.CreateRoomForCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "C-001", room.CaseNumber)

	_, err = f.roomUC.CreateRoomForCase(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRoomUseCase_GetRoomFor(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	room := f.openRoom(t)

	got, err := f.roomUC.GetRoomFor(ctx, clientIdentity, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	got, err = f.roomUC.GetRoomFor(ctx, lawyerIdentity, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	// 非參與者, admin 與不存在的聊天室都視為拒絕
	for _, id := range []domain.Identity{otherLawyer, adminIdentity, {ID: "user-k", Role: domain.RoleLawyer}} {
		_, err = f.roomUC.GetRoomFor(ctx, id, room.ID)
		assert.ErrorIs(t, err, domain.ErrAccessDenied, id.ID)
	}
	_, err = f.roomUC.GetRoomFor(ctx, clientIdentity, "missing")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestRoomUseCase_GetRoomByCaseFor(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	_, err := f.roomUC.GetRoomByCaseFor(ctx, clientIdentity, "case-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "case exists but has no room yet")

	room := f.openRoom(t)
	got, err := f.roomUC.GetRoomByCaseFor(ctx, clientIdentity, "case-1")
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = f.roomUC.GetRoomByCaseFor(ctx, otherLawyer, "case-1")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = f.roomUC.GetRoomByCaseFor(ctx, clientIdentity, "case-unknown")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestRoomUseCase_ListRoomsFor(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	room := f.openRoom(t)

	rooms, err := f.roomUC.ListRoomsFor(ctx, lawyerIdentity)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	rooms, err = f.roomUC.ListRoomsFor(ctx, otherLawyer)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	rooms, err = f.roomUC.ListRoomsFor(ctx, adminIdentity)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	rooms, err = f.roomUC.ListRoomsFor(ctx, domain.Identity{ID: "nobody", Role: domain.RoleClient})
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = f.roomUC.Deactivate(ctx, room.ID)
	require.NoError(t, err)
	rooms, err = f.roomUC.ListRoomsFor(ctx, lawyerIdentity)
	require.NoError(t, err)
	assert.Empty(t, rooms, "inactive rooms are hidden")
}

func TestRoomUseCase_Deactivate(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	room := f.openRoom(t)

	got, err := f.roomUC.Deactivate(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.GreaterOrEqual(t, got.UpdatedAt, room.UpdatedAt)

	again, err := f.roomUC.Deactivate(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, again.IsActive)

	_, err = f.roomUC.Deactivate(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccessGuard_LookupFailureDenies(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	room := f.openRoom(t)

	f.dir.failWith = errors.New("postgres down")
	assert.False(t, f.guard.CanAccess(ctx, clientIdentity, room))
	f.dir.failWith = nil
	assert.True(t, f.guard.CanAccess(ctx, clientIdentity, room))

	assert.False(t, f.guard.CanAccess(ctx, clientIdentity, nil))
	assert.False(t, f.guard.CanAccess(ctx, domain.Identity{Role: domain.RoleClient}, room))
	assert.False(t, f.guard.CanAccessCase(ctx, clientIdentity, nil))
	assert.True(t, f.guard.CanAccessCase(ctx, lawyerIdentity, &testCase))
}

func TestAccessGuard_RoleRoomMatrix(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	f.dir.addParticipant(domain.RoleClient, domain.Participant{ProfileID: "client-2", UserID: "user-c2", Name: "Chen"})
	otherClient := domain.Identity{ID: "user-c2", Role: domain.RoleClient}

	kimLee := &domain.ChatRoom{ID: "r1", ClientID: "client-1", LawyerID: "lawyer-1"}
	chenXu := &domain.ChatRoom{ID: "r2", ClientID: "client-2", LawyerID: "lawyer-9"}

	tests := []struct {
		name     string
		identity domain.Identity
		room     *domain.ChatRoom
		want     bool
	}{
		{"client of the room", clientIdentity, kimLee, true},
		{"lawyer of the room", lawyerIdentity, kimLee, true},
		{"other client", otherClient, kimLee, false},
		{"other lawyer", otherLawyer, kimLee, false},
		{"client of other room", clientIdentity, chenXu, false},
		{"lawyer of other room", lawyerIdentity, chenXu, false},
		{"second room client", otherClient, chenXu, true},
		{"second room lawyer", otherLawyer, chenXu, true},
		{"admin", adminIdentity, kimLee, false},
		{"unknown role", domain.Identity{ID: "user-k", Role: domain.Role("staff")}, kimLee, false},
		{"client claiming lawyer role", domain.Identity{ID: "user-k", Role: domain.RoleLawyer}, kimLee, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.guard.CanAccess(ctx, tt.identity, tt.room))
		})
	}
}
