package app

import (
	"context"
	"errors"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// AccessGuard 判斷身分能否存取聊天室
type AccessGuard struct {
	dir repository.DirectoryRepository
}

// NewAccessGuard create AccessGuard
func NewAccessGuard(dir repository.DirectoryRepository) *AccessGuard {
	return &AccessGuard{dir: dir}
}

// ProfileID role specific profile id of identity, admins and unknown roles are denied
func (g *AccessGuard) ProfileID(ctx context.Context, identity domain.Identity) (string, error) {
	if !identity.Role.IsParticipantRole() {
		return "", domain.ErrAccessDenied
	}
	return g.dir.FindProfileID(ctx, identity.ID, identity.Role)
}

// CanAccess true only when identity's profile is the room's client or lawyer.
// Any lookup failure is a denial.
func (g *AccessGuard) CanAccess(ctx context.Context, identity domain.Identity, room *domain.ChatRoom) bool {
	if room == nil || identity.ID == "" {
		return false
	}

	profileID, err := g.ProfileID(ctx, identity)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrAccessDenied) {
			logger.Log.Warn("profile lookup failed",
				zap.String("userID", identity.ID),
				zap.String("role", string(identity.Role)),
				zap.Error(err),
			)
		}
		return false
	}

	switch identity.Role {
	case domain.RoleClient:
		return profileID == room.ClientID
	case domain.RoleLawyer:
		return profileID == room.LawyerID
	}
	return false
}

// CanAccessCase same rule applied to a case that may not have a room yet
func (g *AccessGuard) CanAccessCase(ctx context.Context, identity domain.Identity, c *domain.CaseRef) bool {
	if c == nil {
		return false
	}
	return g.CanAccess(ctx, identity, &domain.ChatRoom{ClientID: c.ClientID, LawyerID: c.LawyerID})
}
