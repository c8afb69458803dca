package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomUseCase - 案件聊天室的建立與查詢
type RoomUseCase struct {
	roomRepo repository.RoomRepository
	dir      repository.DirectoryRepository
	guard    *AccessGuard
	notifier Notifier
	nowFun   func() time.Time
}

// NewRoomUseCase init room use case
func NewRoomUseCase(
	roomRepo repository.RoomRepository,
	dir repository.DirectoryRepository,
	guard *AccessGuard,
	notifier Notifier,
) *RoomUseCase {
	return &RoomUseCase{
		roomRepo: roomRepo,
		dir:      dir,
		guard:    guard,
		notifier: notifier,
		nowFun:   time.Now,
	}
}

// CreateRoom 為案件開啟聊天室. When the case already has a room the existing
// room is returned together with domain.ErrAlreadyExists.
func (uc *RoomUseCase) CreateRoom(ctx context.Context, ref domain.CaseRef) (*domain.ChatRoom, error) {
	if ref.CaseID == "" {
		return nil, fmt.Errorf("%w: case id is empty", domain.ErrValidation)
	}
	if ref.LawyerID == "" {
		return nil, fmt.Errorf("%w: case %s has no assigned lawyer", domain.ErrInvalidState, ref.CaseID)
	}

	existing, err := uc.roomRepo.FindByCase(ctx, ref.CaseID)
	if err == nil {
		return existing, domain.ErrAlreadyExists
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	client, err := uc.participant(ctx, domain.RoleClient, ref.ClientID)
	if err != nil {
		return nil, err
	}
	lawyer, err := uc.participant(ctx, domain.RoleLawyer, ref.LawyerID)
	if err != nil {
		return nil, err
	}

	now := uc.nowFun().UnixNano()
	room := &domain.ChatRoom{
		ID:           uuid.NewString(),
		CaseID:       ref.CaseID,
		CaseNumber:   ref.CaseNumber,
		ClientID:     ref.ClientID,
		LawyerID:     ref.LawyerID,
		ClientUserID: client.UserID,
		LawyerUserID: lawyer.UserID,
		ClientName:   client.Name,
		LawyerName:   lawyer.Name,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.roomRepo.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// 併發建立, the unique index picked the winner
			winner, findErr := uc.roomRepo.FindByCase(ctx, ref.CaseID)
			if findErr != nil {
				return nil, err
			}
			return winner, domain.ErrAlreadyExists
		}
		return nil, fmt.Errorf("create room: %w", err)
	}

	logger.Log.Info("chat room created",
		zap.String("roomID", room.ID),
		zap.String("caseID", room.CaseID),
		zap.String("caseNumber", room.CaseNumber),
	)

	for _, req := range domain.CaseAssignedNotifications(room) {
		if _, err := uc.notifier.Notify(ctx, req); err != nil {
			logger.Log.Warn("case_assigned notification failed",
				zap.String("roomID", room.ID),
				zap.String("recipientID", req.RecipientID),
				zap.Error(err),
			)
		}
	}
	return room, nil
}

func (uc *RoomUseCase) participant(ctx context.Context, role domain.Role, profileID string) (*domain.Participant, error) {
	if profileID == "" {
		return nil, fmt.Errorf("%w: case has no %s", domain.ErrInvalidState, role)
	}
	p, err := uc.dir.FindParticipant(ctx, role, profileID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s does not exist", domain.ErrInvalidState, role, profileID)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", role, err)
	}
	return p, nil
}

// CreateRoomForCase load the case from the directory then CreateRoom
func (uc *RoomUseCase) CreateRoomForCase(ctx context.Context, caseID string) (*domain.ChatRoom, error) {
	ref, err := uc.dir.FindCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return uc.CreateRoom(ctx, *ref)
}

// GetRoom room by id without access check
func (uc *RoomUseCase) GetRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	return uc.roomRepo.FindByID(ctx, roomID)
}

// GetRoomFor room by id for identity. A missing room and a denied room look the same.
func (uc *RoomUseCase) GetRoomFor(ctx context.Context, identity domain.Identity, roomID string) (*domain.ChatRoom, error) {
	room, err := uc.roomRepo.FindByID(ctx, roomID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrAccessDenied
	}
	if err != nil {
		return nil, err
	}
	if !uc.guard.CanAccess(ctx, identity, room) {
		return nil, domain.ErrAccessDenied
	}
	return room, nil
}

// GetRoomByCase room of caseID or domain.ErrNotFound
func (uc *RoomUseCase) GetRoomByCase(ctx context.Context, caseID string) (*domain.ChatRoom, error) {
	return uc.roomRepo.FindByCase(ctx, caseID)
}

// GetRoomByCaseFor 先檢查案件權限再查聊天室
func (uc *RoomUseCase) GetRoomByCaseFor(ctx context.Context, identity domain.Identity, caseID string) (*domain.ChatRoom, error) {
	ref, err := uc.dir.FindCase(ctx, caseID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrAccessDenied
	}
	if err != nil {
		return nil, err
	}
	if !uc.guard.CanAccessCase(ctx, identity, ref) {
		return nil, domain.ErrAccessDenied
	}
	return uc.roomRepo.FindByCase(ctx, caseID)
}

// ListRoomsFor active rooms of identity, most recent activity first
func (uc *RoomUseCase) ListRoomsFor(ctx context.Context, identity domain.Identity) ([]*domain.ChatRoom, error) {
	profileID, err := uc.guard.ProfileID(ctx, identity)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAccessDenied) {
		return []*domain.ChatRoom{}, nil
	}
	if err != nil {
		return nil, err
	}
	return uc.roomRepo.ListByParticipant(ctx, identity.Role, profileID, true)
}

// Deactivate 停用聊天室, messages stay readable
func (uc *RoomUseCase) Deactivate(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	room, err := uc.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return room, nil
	}

	now := uc.nowFun().UnixNano()
	if err := uc.roomRepo.SetActive(ctx, roomID, false, now); err != nil {
		return nil, fmt.Errorf("deactivate room: %w", err)
	}
	room.IsActive = false
	if now > room.UpdatedAt {
		room.UpdatedAt = now
	}
	logger.Log.Info("chat room deactivated", zap.String("roomID", roomID))
	return room, nil
}
