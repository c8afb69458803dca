package app

import (
	"context"
	"errors"
	"testing"

	"case_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailQueue struct {
	jobs []domain.EmailJob
	err  error
}

func (q *recordingMailQueue) Enqueue(_ context.Context, job domain.EmailJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestNotificationUseCase_Notify(t *testing.T) {
	ctx := context.Background()
	repo := newMemNotificationRepository()
	hub := NewHub(nil)
	mail := &recordingMailQueue{}
	uc := NewNotificationUseCase(repo, hub, mail)

	phone := newRecordingSubscriber("n1", "user-l")
	laptop := newRecordingSubscriber("n2", "user-l")
	hub.Subscribe(ScopeUser, "user-l", phone)
	hub.Subscribe(ScopeUser, "user-l", laptop)

	room := &domain.ChatRoom{ID: "room-1", CaseNumber: "C-001"}
	n, err := uc.Notify(ctx, domain.NotifyRequest{
		RecipientID: "user-l",
		SenderID:    "user-k",
		Room:        room,
		Type:        domain.NotificationNewMessage,
		Title:       "New message in case C-001",
		Body:        "Kim sent you a message",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "room-1", n.RoomID)
	assert.Equal(t, "C-001", n.CaseNumber)
	assert.False(t, n.IsRead)

	// 每條連線都收到
	for _, s := range []*recordingSubscriber{phone, laptop} {
		frames := s.OfType(domain.FrameNotification)
		require.Len(t, frames, 1)
		assert.Equal(t, n.ID, frames[0].Notification.ID)
	}

	require.Len(t, mail.jobs, 1)
	assert.Equal(t, domain.EmailJob{
		NotificationID: n.ID,
		RecipientID:    "user-l",
		Subject:        "New message in case C-001",
		Body:           "Kim sent you a message",
	}, mail.jobs[0])
}

func TestNotificationUseCase_NotifyOfflineAndMailFailure(t *testing.T) {
	ctx := context.Background()
	repo := newMemNotificationRepository()
	uc := NewNotificationUseCase(repo, NewHub(nil), &recordingMailQueue{err: errors.New("rabbit down")})

	n, err := uc.Notify(ctx, domain.NotifyRequest{RecipientID: "user-k", Type: domain.NotificationCaseAssigned, Title: "t", Body: "b"})
	require.NoError(t, err, "offline recipient and mail failure are not errors")

	stored, err := repo.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-k", stored.RecipientID)

	_, err = uc.Notify(ctx, domain.NotifyRequest{Type: domain.NotificationCaseAssigned})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNotificationUseCase_MarkRead(t *testing.T) {
	ctx := context.Background()
	repo := newMemNotificationRepository()
	uc := NewNotificationUseCase(repo, NewHub(nil), nil)

	n, err := uc.Notify(ctx, domain.NotifyRequest{RecipientID: "user-k", Type: domain.NotificationNewMessage, Title: "t", Body: "b"})
	require.NoError(t, err)

	assert.ErrorIs(t, uc.MarkRead(ctx, n.ID, "user-l"), domain.ErrAccessDenied)
	assert.ErrorIs(t, uc.MarkRead(ctx, "missing", "user-k"), domain.ErrNotFound)

	require.NoError(t, uc.MarkRead(ctx, n.ID, "user-k"))
	require.NoError(t, uc.MarkRead(ctx, n.ID, "user-k"), "marking twice is a no-op")

	unread, err := uc.CountUnread(ctx, "user-k")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestNotificationUseCase_ListAndMarkAll(t *testing.T) {
	ctx := context.Background()
	repo := newMemNotificationRepository()
	uc := NewNotificationUseCase(repo, NewHub(nil), nil)

	for _, title := range []string{"one", "two", "three"} {
		_, err := uc.Notify(ctx, domain.NotifyRequest{RecipientID: "user-k", Type: domain.NotificationNewMessage, Title: title})
		require.NoError(t, err)
	}
	_, err := uc.Notify(ctx, domain.NotifyRequest{RecipientID: "user-l", Type: domain.NotificationNewMessage, Title: "other"})
	require.NoError(t, err)

	list, err := uc.ListFor(ctx, "user-k", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "three", list[0].Title, "newest first")

	flipped, err := uc.MarkAllRead(ctx, "user-k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), flipped)

	flipped, err = uc.MarkAllRead(ctx, "user-k")
	require.NoError(t, err)
	assert.Zero(t, flipped)

	unread, err := uc.CountUnread(ctx, "user-l")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestStatsUseCase_Stats(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	room := f.openRoom(t)

	_, err := f.messageUC.PostMessage(ctx, room, clientIdentity, domain.MessageText, "a", "")
	require.NoError(t, err)
	_, err = f.messageUC.PostMessage(ctx, room, clientIdentity, domain.MessageText, "b", "")
	require.NoError(t, err)
	_, err = f.messageUC.PostMessage(ctx, room, lawyerIdentity, domain.MessageText, "c", "")
	require.NoError(t, err)

	stats, err := f.statsUC.Stats(ctx, lawyerIdentity)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalChatRooms)
	assert.Equal(t, int64(1), stats.ActiveChatRooms)
	assert.Equal(t, int64(1), stats.TotalMessagesSent)
	assert.Equal(t, int64(2), stats.UnreadMessages)
	// case_assigned + 兩則 new_message
	assert.Equal(t, int64(3), stats.UnreadNotifications)

	_, err = f.roomUC.Deactivate(ctx, room.ID)
	require.NoError(t, err)
	stats, err = f.statsUC.Stats(ctx, clientIdentity)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalChatRooms)
	assert.Zero(t, stats.ActiveChatRooms)
	assert.Equal(t, int64(2), stats.TotalMessagesSent)
	assert.Equal(t, int64(1), stats.UnreadMessages)

	stats, err = f.statsUC.Stats(ctx, adminIdentity)
	require.NoError(t, err)
	assert.Equal(t, domain.ChatStats{}, *stats)
}
