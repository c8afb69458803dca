package domain

import "time"

// CaseEventFailure Event Bridge 處理失敗的事件, 由排程重試
type CaseEventFailure struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   string `gorm:"size:64;index"`
	CaseID    string `gorm:"size:64;index"`
	Payload   string `gorm:"type:text"`
	Attempts  int
	LastError string `gorm:"type:text"`
	Resolved  bool   `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName gorm table
func (CaseEventFailure) TableName() string {
	return "case_event_failures"
}

// EmailJob 通知的 email 副本
type EmailJob struct {
	NotificationID string `json:"notification_id"`
	RecipientID    string `json:"recipient_id"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}
