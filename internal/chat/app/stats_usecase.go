package app

import (
	"context"
	"errors"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
)

// StatsUseCase 使用者聊天統計
type StatsUseCase struct {
	roomRepo  repository.RoomRepository
	msgRepo   repository.MessageRepository
	notifRepo repository.NotificationRepository
	guard     *AccessGuard
}

// NewStatsUseCase init stats use case
func NewStatsUseCase(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	notifRepo repository.NotificationRepository,
	guard *AccessGuard,
) *StatsUseCase {
	return &StatsUseCase{roomRepo: roomRepo, msgRepo: msgRepo, notifRepo: notifRepo, guard: guard}
}

// Stats counts for identity. Identities without a profile only get their notification count.
func (uc *StatsUseCase) Stats(ctx context.Context, identity domain.Identity) (*domain.ChatStats, error) {
	stats := &domain.ChatStats{}

	unreadNotif, err := uc.notifRepo.CountUnread(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	stats.UnreadNotifications = unreadNotif

	profileID, err := uc.guard.ProfileID(ctx, identity)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAccessDenied) {
		return stats, nil
	}
	if err != nil {
		return nil, err
	}

	total, active, err := uc.roomRepo.CountByParticipant(ctx, identity.Role, profileID)
	if err != nil {
		return nil, err
	}
	stats.TotalChatRooms = total
	stats.ActiveChatRooms = active

	if stats.TotalMessagesSent, err = uc.msgRepo.CountSentBy(ctx, identity.ID); err != nil {
		return nil, err
	}

	rooms, err := uc.roomRepo.ListByParticipant(ctx, identity.Role, profileID, false)
	if err != nil {
		return nil, err
	}
	if len(rooms) > 0 {
		ids := make([]string, 0, len(rooms))
		for _, r := range rooms {
			ids = append(ids, r.ID)
		}
		if stats.UnreadMessages, err = uc.msgRepo.CountUnreadFor(ctx, ids, identity.ID); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
