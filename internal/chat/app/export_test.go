package app

import (
	"testing"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
)

// TestServices in-memory wired use cases for the external test package
type TestServices struct {
	Room     *RoomUseCase
	Message  *MessageUseCase
	Notif    *NotificationUseCase
	Stats    *StatsUseCase
	Presence repository.PresenceRepository
	Messages repository.MessageRepository
	Room1    *domain.ChatRoom
}

var (
	ClientIdentity = clientIdentity
	LawyerIdentity = lawyerIdentity
	OtherLawyer    = otherLawyer
	AdminIdentity  = adminIdentity
)

// NewTestServices fixture with the room of case-1 already open
func NewTestServices(t *testing.T) TestServices {
	f := newChatFixture(t)
	return TestServices{
		Room:     f.roomUC,
		Message:  f.messageUC,
		Notif:    f.notifUC,
		Stats:    f.statsUC,
		Presence: NewLocalPresence(),
		Messages: f.msgs,
		Room1:    f.openRoom(t),
	}
}
