package domain

// MessageType 訊息類型
type MessageType string

const (
	// MessageText plain text
	MessageText MessageType = "text"
	// MessageFile file attachment
	MessageFile MessageType = "file"
	// MessageImage image attachment
	MessageImage MessageType = "image"
	// MessageSystem generated by the platform
	MessageSystem MessageType = "system"
)

// Valid closed set check
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFile, MessageImage, MessageSystem:
		return true
	}
	return false
}

// Message 一則聊天訊息. RoomID and SenderID never change after insert.
type Message struct {
	ID         string      `bson:"_id" json:"id"`
	RoomID     string      `bson:"room_id" json:"room_id"`
	SenderID   string      `bson:"sender_id" json:"sender_id"`
	SenderRole Role        `bson:"sender_role" json:"sender_role"`
	Type       MessageType `bson:"message_type" json:"message_type"`
	Content    string      `bson:"content" json:"content"`
	Attachment string      `bson:"attachment,omitempty" json:"attachment,omitempty"`
	IsRead     bool        `bson:"is_read" json:"is_read"`
	ReadAt     int64       `bson:"read_at,omitempty" json:"read_at,omitempty"`
	IsDeleted  bool        `bson:"is_deleted" json:"is_deleted"`
	CreatedAt  int64       `bson:"created_at" json:"created_at"`
	UpdatedAt  int64       `bson:"updated_at" json:"updated_at"`
}

// MessageReadStatus 已讀回條, unique per (message, reader)
type MessageReadStatus struct {
	ID        string `bson:"_id" json:"id"`
	MessageID string `bson:"message_id" json:"message_id"`
	RoomID    string `bson:"room_id" json:"room_id"`
	ReaderID  string `bson:"reader_id" json:"reader_id"`
	ReadAt    int64  `bson:"read_at" json:"read_at"`
}

// MessageView message rendered for one viewer
type MessageView struct {
	ID            string      `json:"id"`
	RoomID        string      `json:"room_id"`
	SenderID      string      `json:"sender_id"`
	SenderName    string      `json:"sender_name"`
	SenderRole    Role        `json:"sender_role,omitempty"`
	MessageType   MessageType `json:"message_type"`
	Content       string      `json:"content"`
	Attachment    string      `json:"attachment,omitempty"`
	AttachmentURL string      `json:"attachment_url,omitempty"`
	IsRead        bool        `json:"is_read"`
	ReadAt        int64       `json:"read_at,omitempty"`
	CreatedAt     int64       `json:"created_at"`
	IsOwnMessage  bool        `json:"is_own_message"`
}

// NewMessageView render m inside room for viewerID
func NewMessageView(m *Message, room *ChatRoom, viewerID string) *MessageView {
	v := &MessageView{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		SenderRole:  m.SenderRole,
		MessageType: m.Type,
		Content:     m.Content,
		Attachment:  m.Attachment,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
		CreatedAt:   m.CreatedAt,
	}
	if room != nil {
		v.SenderName = room.DisplayName(m.SenderID)
	}
	return v.ForViewer(viewerID)
}

// ForViewer copy with is_own_message computed for viewerID
func (v *MessageView) ForViewer(viewerID string) *MessageView {
	cp := *v
	cp.IsOwnMessage = viewerID != "" && v.SenderID == viewerID
	return &cp
}

// ChatStats 使用者聊天統計
type ChatStats struct {
	TotalChatRooms      int64 `json:"total_chat_rooms"`
	ActiveChatRooms     int64 `json:"active_chat_rooms"`
	TotalMessagesSent   int64 `json:"total_messages_sent"`
	UnreadMessages      int64 `json:"unread_messages"`
	UnreadNotifications int64 `json:"unread_notifications"`
}
