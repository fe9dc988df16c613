package directory

import (
	"fmt"
	"strings"
	"time"
)

// WeeklySchedule maps a lower-case weekday ("monday") to the windows an
// employee takes calls in, expressed in the employee's own time zone.
type WeeklySchedule map[string][]TimeWindow

type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// IsAvailableAt reports whether the employee takes calls at the given instant.
// An empty schedule means the status alone decides.
func IsAvailableAt(employee *Employee, at time.Time) bool {
	if employee.Status != StatusAvailable {
		return false
	}

	schedule := employee.AvailabilityHours.Data()
	if len(schedule) == 0 {
		return true
	}

	return schedule.covers(at.In(loadLocation(employee.TimeZone)))
}

func (schedule WeeklySchedule) covers(local time.Time) bool {
	minute := local.Hour()*60 + local.Minute()

	for _, window := range schedule[strings.ToLower(local.Weekday().String())] {
		if window.contains(minute) {
			return true
		}
	}

	return false
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil || name == "" {
		return time.UTC
	}

	return loc
}

func (window TimeWindow) contains(minute int) bool {
	start, err := parseClock(window.Start)
	if err != nil {
		return false
	}

	end, err := parseClock(window.End)
	if err != nil {
		return false
	}

	if end <= start {
		// overnight window, e.g. 22:00-06:00
		return minute >= start || minute < end
	}

	return minute >= start && minute < end
}

func parseClock(value string) (int, error) {
	var hour, minute int

	_, err := fmt.Sscanf(value, "%d:%d", &hour, &minute)
	if err != nil {
		return 0, err
	}

	if hour < 0 || hour > 24 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock value %q out of range", value)
	}

	return hour*60 + minute, nil
}
