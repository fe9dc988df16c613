package calllog

import "time"

const (
	StatusTransferred  = "transferred"
	StatusMessageTaken = "message_taken"
	StatusAbandoned    = "abandoned"
	StatusFailed       = "failed"
)

// CallLog is written once when a session closes and never updated.
type CallLog struct {
	ID                  string     `gorm:"column:id;type:uuid;primaryKey"                          json:"id"`
	SessionID           string     `gorm:"column:session_id;type:varchar(64);uniqueIndex;not null" json:"session_id"`
	CallerPhone         string     `gorm:"column:caller_phone;type:varchar(32);not null"           json:"caller_phone"`
	CallerName          *string    `gorm:"column:caller_name;type:varchar(255)"                    json:"caller_name,omitempty"`
	EmployeeID          *string    `gorm:"column:employee_id;type:uuid;index"                      json:"employee_id,omitempty"`
	RoomName            string     `gorm:"column:room_name;type:varchar(255);not null"             json:"room_name"`
	Status              string     `gorm:"column:status;type:varchar(20);not null"                 json:"status"`
	ConsultationOutcome *string    `gorm:"column:consultation_outcome;type:varchar(32)"            json:"consultation_outcome,omitempty"`
	MessageText         *string    `gorm:"column:message_text;type:text"                           json:"message_text,omitempty"`
	RecordingRef        *string    `gorm:"column:recording_ref;type:text"                          json:"recording_ref,omitempty"`
	Notes               *string    `gorm:"column:notes;type:text"                                  json:"notes,omitempty"`
	NeedsReconciliation bool       `gorm:"column:needs_reconciliation;default:false;not null"      json:"needs_reconciliation"`
	StartedAt           time.Time  `gorm:"column:started_at;not null"                              json:"started_at"`
	EndedAt             *time.Time `gorm:"column:ended_at"                                         json:"ended_at,omitempty"`
	DurationSeconds     int        `gorm:"column:duration_seconds;not null"                        json:"duration_seconds"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"                        json:"created_at"`
}

func (CallLog) TableName() string {
	return "call_logs"
}
