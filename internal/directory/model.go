package directory

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	StatusAvailable   = "available"
	StatusBusy        = "busy"
	StatusOffline     = "offline"
	StatusUnavailable = "unavailable"
)

type Department struct {
	ID              string    `gorm:"column:id;type:uuid;primaryKey"                 json:"id"`
	Name            string    `gorm:"column:name;type:varchar(100);uniqueIndex;not null" json:"name"`
	Description     *string   `gorm:"column:description;type:text"                 json:"description,omitempty"`
	RoutingPriority int       `gorm:"column:routing_priority;type:int;default:0;not null" json:"routing_priority"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"             json:"created_at"`
}

func (Department) TableName() string {
	return "departments"
}

type Employee struct {
	ID                string                             `gorm:"column:id;type:uuid;primaryKey"                           json:"id"`
	FirstName         string                             `gorm:"column:first_name;type:varchar(100);not null"             json:"first_name"`
	LastName          string                             `gorm:"column:last_name;type:varchar(100);not null"              json:"last_name"`
	Email             *string                            `gorm:"column:email;type:varchar(255)"                           json:"email,omitempty"`
	PhoneNumber       string                             `gorm:"column:phone_number;type:varchar(32);not null"            json:"phone_number"`
	DepartmentID      *string                            `gorm:"column:department_id;type:uuid;index"                     json:"department_id,omitempty"`
	Department        *Department                        `gorm:"foreignKey:DepartmentID"                                  json:"department,omitempty"`
	Status            string                             `gorm:"column:status;type:varchar(20);default:'available';not null" json:"status"`
	TimeZone          string                             `gorm:"column:time_zone;type:varchar(64);default:'UTC';not null" json:"time_zone"`
	AvailabilityHours datatypes.JSONType[WeeklySchedule] `gorm:"column:availability_hours;type:jsonb"                     json:"availability_hours"`
	CreatedAt         time.Time                          `gorm:"column:created_at;autoCreateTime"                         json:"created_at"`
	UpdatedAt         time.Time                          `gorm:"column:updated_at;autoUpdateTime"                         json:"updated_at"`
}

func (Employee) TableName() string {
	return "employees"
}

func (employee *Employee) FullName() string {
	return strings.TrimSpace(employee.FirstName + " " + employee.LastName)
}

func (employee *Employee) DepartmentName() string {
	if employee.Department == nil {
		return ""
	}

	return employee.Department.Name
}

// Query is what the caller asked for; either field may be empty but not both.
type Query struct {
	Name       string `json:"name,omitempty"`
	Department string `json:"department,omitempty"`
}

func (query Query) IsEmpty() bool {
	return strings.TrimSpace(query.Name) == "" && strings.TrimSpace(query.Department) == ""
}
