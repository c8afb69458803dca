package domain

import "fmt"

// NotificationType 通知類型
type NotificationType string

const (
	// NotificationNewMessage a message arrived in one of the recipient's rooms
	NotificationNewMessage NotificationType = "new_message"
	// NotificationCaseAssigned a room was opened for the recipient's case
	NotificationCaseAssigned NotificationType = "case_assigned"
	// NotificationCaseStatusChanged the case moved to another status
	NotificationCaseStatusChanged NotificationType = "case_status_changed"
)

// ChatNotification 持久化通知. Only IsRead is ever mutated.
type ChatNotification struct {
	ID          string           `bson:"_id" json:"id"`
	RecipientID string           `bson:"recipient_id" json:"recipient_id"`
	SenderID    string           `bson:"sender_id,omitempty" json:"sender_id,omitempty"`
	RoomID      string           `bson:"room_id" json:"room_id"`
	CaseNumber  string           `bson:"case_number,omitempty" json:"case_number,omitempty"`
	Type        NotificationType `bson:"notification_type" json:"notification_type"`
	Title       string           `bson:"title" json:"title"`
	Body        string           `bson:"message" json:"message"`
	IsRead      bool             `bson:"is_read" json:"is_read"`
	CreatedAt   int64            `bson:"created_at" json:"created_at"`
}

// NotifyRequest input of the fan-out
type NotifyRequest struct {
	RecipientID string
	SenderID    string
	Room        *ChatRoom
	Type        NotificationType
	Title       string
	Body        string
}

// CaseAssignedNotifications two notifications sent when a room is opened
func CaseAssignedNotifications(room *ChatRoom) []NotifyRequest {
	title := fmt.Sprintf("Chat room created for case %s", room.CaseNumber)
	return []NotifyRequest{
		{
			RecipientID: room.ClientUserID,
			Room:        room,
			Type:        NotificationCaseAssigned,
			Title:       title,
			Body:        "You can now chat with your assigned lawyer",
		},
		{
			RecipientID: room.LawyerUserID,
			Room:        room,
			Type:        NotificationCaseAssigned,
			Title:       title,
			Body:        "You can now chat with your client",
		},
	}
}

// CaseStatusNotifications notifications for both participants after a status change
func CaseStatusNotifications(room *ChatRoom, status CaseStatus) []NotifyRequest {
	title := fmt.Sprintf("Case %s status updated", room.CaseNumber)
	label := status.Label()
	return []NotifyRequest{
		{
			RecipientID: room.ClientUserID,
			Room:        room,
			Type:        NotificationCaseStatusChanged,
			Title:       title,
			Body:        fmt.Sprintf("Your case status has been changed to: %s", label),
		},
		{
			RecipientID: room.LawyerUserID,
			Room:        room,
			Type:        NotificationCaseStatusChanged,
			Title:       title,
			Body:        fmt.Sprintf("Case status has been changed to: %s", label),
		},
	}
}

// NewMessageNotification notification for the participant who did not send m
func NewMessageNotification(room *ChatRoom, m *Message) NotifyRequest {
	return NotifyRequest{
		RecipientID: room.OtherUserID(m.SenderID),
		SenderID:    m.SenderID,
		Room:        room,
		Type:        NotificationNewMessage,
		Title:       fmt.Sprintf("New message in case %s", room.CaseNumber),
		Body:        fmt.Sprintf("%s sent you a message", room.DisplayName(m.SenderID)),
	}
}
