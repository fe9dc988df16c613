package message

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusRead      = "read"
)

type Message struct {
	ID           string                      `gorm:"column:id;type:uuid;primaryKey"                          json:"id"`
	SessionID    string                      `gorm:"column:session_id;type:varchar(64);uniqueIndex;not null" json:"session_id"`
	FromPhone    string                      `gorm:"column:from_phone;type:varchar(32);not null"             json:"from_phone"`
	CallerName   *string                     `gorm:"column:caller_name;type:varchar(255)"                    json:"caller_name,omitempty"`
	ToEmployeeID *string                     `gorm:"column:to_employee_id;type:uuid;index"                   json:"to_employee_id,omitempty"`
	Text         string                      `gorm:"column:text;type:text;not null"                          json:"text"`
	Status       string                      `gorm:"column:status;type:varchar(20);default:'pending';not null" json:"status"`
	DeliveredVia datatypes.JSONSlice[string] `gorm:"column:delivered_via;type:jsonb"                         json:"delivered_via,omitempty"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime"                        json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
