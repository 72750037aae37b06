package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard five-field syntax plus descriptors
// like @hourly and @every.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule checks the cron expression and the IANA timezone name.
// The timezone is always explicit per task; an empty one is rejected so a
// UTC default can never creep in silently.
func ValidateSchedule(schedule, timezone string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("%w: %v", ErrTaskInvalidSchedule, err)
	}
	if timezone == "" {
		return ErrTaskInvalidTimezone
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrTaskInvalidTimezone, err)
	}
	return nil
}

// NextOccurrence returns the first firing of the schedule strictly after
// the given instant, evaluated in the task's timezone.
func NextOccurrence(schedule, timezone string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTaskInvalidSchedule, err)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTaskInvalidTimezone, err)
	}
	return sched.Next(after.In(loc)), nil
}
