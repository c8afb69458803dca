package domain

import "encoding/json"

// FrameType websocket frame discriminator
type FrameType string

const (
	// FrameChatMessage chat message, inbound and outbound
	FrameChatMessage FrameType = "chat_message"
	// FrameTyping typing indicator, inbound and outbound
	FrameTyping FrameType = "typing"
	// FrameMarkRead read request inbound, read state update outbound
	FrameMarkRead FrameType = "mark_read"
	// FrameUserStatus presence update
	FrameUserStatus FrameType = "user_status"
	// FrameError protocol or validation error
	FrameError FrameType = "error"
	// FrameNotification pushed notification
	FrameNotification FrameType = "notification"
	// FrameMarkNotificationRead inbound on the notification endpoint
	FrameMarkNotificationRead FrameType = "mark_notification_read"
	// FrameNotificationRead ack of mark_notification_read
	FrameNotificationRead FrameType = "notification_read"
)

// Presence status values of user_status frames
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// InboundFrame 客戶端送來的 frame
type InboundFrame struct {
	Type           FrameType   `json:"type"`
	Message        string      `json:"message,omitempty"`
	Content        string      `json:"content,omitempty"`
	MessageType    MessageType `json:"message_type,omitempty"`
	Attachment     string      `json:"attachment,omitempty"`
	IsTyping       bool        `json:"is_typing,omitempty"`
	MessageID      string      `json:"message_id,omitempty"`
	NotificationID string      `json:"notification_id,omitempty"`
}

// Text chat text, "content" is accepted for older clients
func (f InboundFrame) Text() string {
	if f.Message != "" {
		return f.Message
	}
	return f.Content
}

// OutboundFrame 推送給客戶端的 frame. The "message" key carries a MessageView
// for chat_message frames and a text for error frames.
type OutboundFrame struct {
	Type FrameType `json:"type"`

	Message *MessageView `json:"-"`
	Text    string       `json:"-"`

	UserID     string   `json:"user_id,omitempty"`
	Username   string   `json:"username,omitempty"`
	IsTyping   *bool    `json:"is_typing,omitempty"`
	Status     string   `json:"status,omitempty"`
	MessageID  string   `json:"message_id,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`
	ReadAt     int64    `json:"read_at,omitempty"`

	Notification   *ChatNotification `json:"notification,omitempty"`
	NotificationID string            `json:"notification_id,omitempty"`
}

type outboundAlias OutboundFrame

// MarshalJSON put either Message or Text under "message"
func (f OutboundFrame) MarshalJSON() ([]byte, error) {
	var msg interface{}
	if f.Message != nil {
		msg = f.Message
	} else if f.Text != "" {
		msg = f.Text
	}
	return json.Marshal(struct {
		outboundAlias
		Message interface{} `json:"message,omitempty"`
	}{outboundAlias(f), msg})
}

// UnmarshalJSON inverse of MarshalJSON
func (f *OutboundFrame) UnmarshalJSON(b []byte) error {
	aux := struct {
		*outboundAlias
		Message json.RawMessage `json:"message,omitempty"`
	}{outboundAlias: (*outboundAlias)(f)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Message) == 0 || string(aux.Message) == "null" {
		return nil
	}
	if aux.Message[0] == '{' {
		var mv MessageView
		if err := json.Unmarshal(aux.Message, &mv); err != nil {
			return err
		}
		f.Message = &mv
		return nil
	}
	return json.Unmarshal(aux.Message, &f.Text)
}

// ForViewer per-connection copy, is_own_message is recomputed for viewerID
func (f OutboundFrame) ForViewer(viewerID string) OutboundFrame {
	if f.Message != nil {
		f.Message = f.Message.ForViewer(viewerID)
	}
	return f
}

// ErrorFrame error frame with text
func ErrorFrame(text string) OutboundFrame {
	return OutboundFrame{Type: FrameError, Text: text}
}

// ChatMessageFrame broadcast frame of a persisted message
func ChatMessageFrame(v *MessageView) OutboundFrame {
	return OutboundFrame{Type: FrameChatMessage, Message: v}
}

// TypingFrame typing indicator of userID
func TypingFrame(userID, username string, typing bool) OutboundFrame {
	return OutboundFrame{Type: FrameTyping, UserID: userID, Username: username, IsTyping: &typing}
}

// UserStatusFrame presence change of userID
func UserStatusFrame(userID, username, status string) OutboundFrame {
	return OutboundFrame{Type: FrameUserStatus, UserID: userID, Username: username, Status: status}
}

// MarkReadFrame read state update, readerID read messageIDs at readAt
func MarkReadFrame(readerID string, readAt int64, messageIDs ...string) OutboundFrame {
	f := OutboundFrame{Type: FrameMarkRead, UserID: readerID, ReadAt: readAt}
	if len(messageIDs) == 1 {
		f.MessageID = messageIDs[0]
	} else {
		f.MessageIDs = messageIDs
	}
	return f
}

// NotificationFrame push of a persisted notification
func NotificationFrame(n *ChatNotification) OutboundFrame {
	return OutboundFrame{Type: FrameNotification, Notification: n}
}
