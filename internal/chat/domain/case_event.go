package domain

// CaseStatus status emitted by the case lifecycle
type CaseStatus string

const (
	// CasePending waiting for assignment
	CasePending CaseStatus = "pending"
	// CaseAssigned lawyer assigned
	CaseAssigned CaseStatus = "assigned"
	// CaseInProgress work started
	CaseInProgress CaseStatus = "in_progress"
	// CaseCompleted closed successfully
	CaseCompleted CaseStatus = "completed"
	// CaseRejected rejected
	CaseRejected CaseStatus = "rejected"
)

var caseStatusLabels = map[CaseStatus]string{
	CasePending:    "Pending",
	CaseAssigned:   "Assigned",
	CaseInProgress: "In Progress",
	CaseCompleted:  "Completed",
	CaseRejected:   "Rejected",
}

// Label human readable status, unknown statuses are returned as-is
func (s CaseStatus) Label() string {
	if l, ok := caseStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// CaseEvent 案件狀態變更事件
type CaseEvent struct {
	EventID    string     `json:"event_id,omitempty"`
	CaseID     string     `json:"case_id"`
	CaseNumber string     `json:"case_number"`
	Status     CaseStatus `json:"status"`
	LawyerID   string     `json:"lawyer_id,omitempty"`
	ClientID   string     `json:"client_id"`
}

// Ref case reference for room creation
func (e CaseEvent) Ref() CaseRef {
	return CaseRef{
		CaseID:     e.CaseID,
		CaseNumber: e.CaseNumber,
		ClientID:   e.ClientID,
		LawyerID:   e.LawyerID,
		Status:     string(e.Status),
	}
}

// OpensRoom the single trigger that creates a room
func (e CaseEvent) OpensRoom() bool {
	return e.Status == CaseAssigned && e.LawyerID != ""
}
