package domain

import "strings"

// Role 聊天室參與者角色
type Role string

const (
	// RoleClient case owner
	RoleClient Role = "client"
	// RoleLawyer assigned lawyer
	RoleLawyer Role = "lawyer"
	// RoleAdmin platform administrator, never a room participant
	RoleAdmin Role = "admin"
)

// ParseRole normalise the role claim. "customer" is the legacy name of client.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client", "customer":
		return RoleClient
	case "lawyer":
		return RoleLawyer
	case "admin":
		return RoleAdmin
	}
	return Role(s)
}

// IsParticipantRole only client and lawyer can join a room
func (r Role) IsParticipantRole() bool {
	return r == RoleClient || r == RoleLawyer
}

// Identity authenticated caller
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Participant role-specific profile of a user
type Participant struct {
	ProfileID string `json:"profile_id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
}

// CaseRef case as seen by the chat core
type CaseRef struct {
	CaseID     string `json:"case_id"`
	CaseNumber string `json:"case_number"`
	ClientID   string `json:"client_id"`
	LawyerID   string `json:"lawyer_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// ChatRoom 每個案件唯一的聊天室
type ChatRoom struct {
	ID         string `bson:"_id" json:"id"`
	CaseID     string `bson:"case_id" json:"case_id"`
	CaseNumber string `bson:"case_number" json:"case_number"`

	// profile ids, used by the access guard
	ClientID string `bson:"client_id" json:"client_id"`
	LawyerID string `bson:"lawyer_id" json:"lawyer_id"`

	// identity ids, used for routing and notifications
	ClientUserID string `bson:"client_user_id" json:"client_user_id"`
	LawyerUserID string `bson:"lawyer_user_id" json:"lawyer_user_id"`
	ClientName   string `bson:"client_name" json:"client_name"`
	LawyerName   string `bson:"lawyer_name" json:"lawyer_name"`

	IsActive  bool  `bson:"is_active" json:"is_active"`
	CreatedAt int64 `bson:"created_at" json:"created_at"`
	UpdatedAt int64 `bson:"updated_at" json:"updated_at"`
}

// HasUser report whether userID is one of the two participants
func (r *ChatRoom) HasUser(userID string) bool {
	return userID != "" && (userID == r.ClientUserID || userID == r.LawyerUserID)
}

// OtherUserID return the other participant's identity id, empty if userID is not in the room
func (r *ChatRoom) OtherUserID(userID string) string {
	switch userID {
	case r.ClientUserID:
		return r.LawyerUserID
	case r.LawyerUserID:
		return r.ClientUserID
	}
	return ""
}

// DisplayName name of the participant with userID
func (r *ChatRoom) DisplayName(userID string) string {
	switch userID {
	case "":
		return "System"
	case r.ClientUserID:
		return r.ClientName
	case r.LawyerUserID:
		return r.LawyerName
	}
	return ""
}
