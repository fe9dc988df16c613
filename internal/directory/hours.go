package directory

import (
	"fmt"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"github.com/goccy/go-json"
)

// CompanyHours is the switchboard's opening schedule. Without any windows the
// company counts as always open.
type CompanyHours struct {
	Schedule WeeklySchedule
	Location *time.Location
}

// ParseCompanyHours reads a schedule such as
// {"monday":[{"start":"08:00","end":"17:00"}]}.
func ParseCompanyHours(raw, timeZone string) (*CompanyHours, error) {
	hours := &CompanyHours{Location: loadLocation(timeZone)}

	if strings.TrimSpace(raw) == "" {
		return hours, nil
	}

	var schedule WeeklySchedule

	err := json.Unmarshal([]byte(raw), &schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid company hours: %w", err)
	}

	hours.Schedule = make(WeeklySchedule, len(schedule))
	for day, windows := range schedule {
		hours.Schedule[strings.ToLower(day)] = windows
	}

	return hours, nil
}

func CompanyHoursFromConfig() (*CompanyHours, error) {
	return ParseCompanyHours(config.Conf.CompanyHours, config.Conf.CompanyTimeZone)
}

func (hours *CompanyHours) IsOpen(at time.Time) bool {
	if len(hours.Schedule) == 0 {
		return true
	}

	return hours.Schedule.covers(at.In(hours.Location))
}
