package deadletter

import (
	"time"

	"gorm.io/datatypes"
)

const (
	KindCallLog = "call_log"
	KindMessage = "message"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
)

// PendingWrite is a call log or message whose write failed and is waiting to
// be replayed. Key is the session id; one row exists per kind and key.
type PendingWrite struct {
	ID          string         `gorm:"column:id;type:uuid;primaryKey"                                 json:"id"`
	Kind        string         `gorm:"column:kind;type:varchar(20);not null;uniqueIndex:idx_pending_kind_key" json:"kind"`
	Key         string         `gorm:"column:key;type:varchar(64);not null;uniqueIndex:idx_pending_kind_key"  json:"key"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb;not null"                            json:"payload"`
	Error       string         `gorm:"column:error;type:text;not null"                               json:"error"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending';not null"     json:"status"`
	RetryCount  int            `gorm:"column:retry_count;type:int;default:0;not null"                json:"retry_count"`
	LastRetryAt *time.Time     `gorm:"column:last_retry_at;type:timestamp"                           json:"last_retry_at,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"                              json:"created_at"`
}

func (PendingWrite) TableName() string {
	return "pending_writes"
}
